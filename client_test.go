package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/solatis/beacon/internal/types"
	"github.com/solatis/beacon/internal/upload"
)

// scriptTransport captures deliveries instead of performing them. A
// negative scripted status means a network error.
type scriptTransport struct {
	script   []int
	attempts int
	urls     []string
	bodies   [][]byte
	headers  []map[string]string
}

func (s *scriptTransport) Deliver(ctx context.Context, url string, headers map[string]string, body []byte) (int, error) {
	s.attempts++
	s.urls = append(s.urls, url)
	s.bodies = append(s.bodies, append([]byte(nil), body...))
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	s.headers = append(s.headers, h)

	status := 200
	if len(s.script) > 0 {
		status = s.script[0]
		s.script = s.script[1:]
	}
	if status < 0 {
		return 0, errors.New("connection refused")
	}
	return status, nil
}

func testConfig(dbURL string) *Config {
	cfg := DefaultConfig()
	cfg.AppID = "org-example-app"
	cfg.ServerEndpoint = "https://collector.example.com"
	cfg.DatabaseURL = dbURL
	cfg.LogLevel = "error"
	cfg.TestingMode = true
	return cfg
}

func newTestClient(t *testing.T) (*Client, *scriptTransport) {
	t.Helper()
	transport := &scriptTransport{}
	client, err := New(
		testConfig("sqlite://"+filepath.Join(t.TempDir(), "beacon.db")),
		WithTransport(transport),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, transport
}

func decodePayload(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("delivered payload is not valid JSON: %v", err)
	}
	return payload
}

func counterConfig(name string, pings ...string) MetricConfig {
	return MetricConfig{
		Identity:    MetricIdentity{Category: "app", Name: name},
		Lifetime:    LifetimePing,
		SendInPings: pings,
	}
}

func TestSubmitAndDrain_ClientIDIncluded(t *testing.T) {
	client, transport := newTestClient(t)

	client.RegisterPing(PingConfig{Name: "custom", IncludeClientID: true})
	client.AddCounter(counterConfig("launches", "custom"), 1)
	client.SubmitPing("custom")

	if err := client.DrainQueue(context.Background()); err != nil {
		t.Fatalf("DrainQueue() error = %v", err)
	}
	if transport.attempts != 1 {
		t.Fatalf("attempts = %d, expected 1", transport.attempts)
	}

	// Path carries the doc-type segment for the submitted ping.
	if !strings.Contains(transport.urls[0], "/submit/org-example-app/custom/1/") {
		t.Errorf("url = %q, expected custom submit path", transport.urls[0])
	}

	payload := decodePayload(t, transport.bodies[0])
	clientInfo, ok := payload["client_info"].(map[string]any)
	if !ok {
		t.Fatal("client_info section missing")
	}
	clientID, ok := clientInfo["client_id"].(string)
	if !ok {
		t.Fatal("client_id missing despite IncludeClientID")
	}
	if _, err := types.ParseClientID(clientID); err != nil {
		t.Errorf("client_id %q is not a UUID: %v", clientID, err)
	}
	if clientID != client.TestClientID() {
		t.Error("delivered client_id differs from the persisted one")
	}
}

func TestSubmitAndDrain_ClientIDOmitted(t *testing.T) {
	client, transport := newTestClient(t)

	client.RegisterPing(PingConfig{Name: "anon", IncludeClientID: false})
	client.AddCounter(counterConfig("launches", "anon"), 1)
	client.SubmitPing("anon")

	if err := client.DrainQueue(context.Background()); err != nil {
		t.Fatalf("DrainQueue() error = %v", err)
	}
	if transport.attempts != 1 {
		t.Fatalf("attempts = %d, expected 1", transport.attempts)
	}

	payload := decodePayload(t, transport.bodies[0])
	clientInfo, ok := payload["client_info"].(map[string]any)
	if !ok {
		t.Fatal("client_info section missing")
	}
	if _, present := clientInfo["client_id"]; present {
		t.Error("client_id must be absent when IncludeClientID is false")
	}
}

func TestSubmitPing_UnknownIsNoOp(t *testing.T) {
	client, transport := newTestClient(t)

	for i := 0; i < 3; i++ {
		client.SubmitPing("never-registered")
	}

	count, err := client.PendingPingCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("PendingPingCount() = %d, expected 0 after unknown submits", count)
	}
	if err := client.DrainQueue(context.Background()); err != nil {
		t.Fatalf("DrainQueue() error = %v", err)
	}
	if transport.attempts != 0 {
		t.Errorf("attempts = %d, expected 0", transport.attempts)
	}
}

func TestFirstRun_MarkerAndIdentitySurviveReopen(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "beacon.db")

	first, err := New(testConfig(dbURL), WithTransport(&scriptTransport{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !first.IsFirstRun() {
		t.Error("cold start must report first run")
	}
	clientID := first.TestClientID()
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := New(testConfig(dbURL), WithTransport(&scriptTransport{}))
	if err != nil {
		t.Fatalf("reopen New() error = %v", err)
	}
	defer second.Close()
	if second.IsFirstRun() {
		t.Error("reopen must not report first run")
	}
	if second.TestClientID() != clientID {
		t.Error("client_id must survive a restart")
	}
}

func TestQueueAndSequence_SurviveReopen(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "beacon.db")

	first, err := New(testConfig(dbURL), WithTransport(&scriptTransport{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first.RegisterPing(PingConfig{Name: "custom", IncludeClientID: true})
	first.AddCounter(counterConfig("launches", "custom"), 1)
	first.SubmitPing("custom")
	count, err := first.PendingPingCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("PendingPingCount() = %d, expected 1 before restart", count)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	transport := &scriptTransport{}
	second, err := New(testConfig(dbURL), WithTransport(transport))
	if err != nil {
		t.Fatalf("reopen New() error = %v", err)
	}
	defer second.Close()

	// The queued ping outlived the restart and still delivers.
	if err := second.DrainQueue(context.Background()); err != nil {
		t.Fatalf("DrainQueue() error = %v", err)
	}
	if transport.attempts != 1 {
		t.Fatalf("attempts = %d, expected 1", transport.attempts)
	}

	// The sequence counter continues where the first process stopped.
	second.RegisterPing(PingConfig{Name: "custom", IncludeClientID: true})
	second.AddCounter(counterConfig("launches", "custom"), 1)
	second.SubmitPing("custom")
	if err := second.DrainQueue(context.Background()); err != nil {
		t.Fatal(err)
	}
	payload := decodePayload(t, transport.bodies[1])
	seq := payload["ping_info"].(map[string]any)["seq"].(float64)
	if int(seq) != 1 {
		t.Errorf("seq after restart = %d, expected 1", int(seq))
	}
}

func TestTimespan_StartStopAccumulates(t *testing.T) {
	client, _ := newTestClient(t)

	m := MetricConfig{
		Identity:    MetricIdentity{Category: "app", Name: "startup"},
		Lifetime:    LifetimePing,
		SendInPings: []string{"metrics"},
	}

	client.StartTimespan(m)
	time.Sleep(2 * time.Millisecond)
	client.StopTimespan(m, UnitNanosecond)

	value, err := client.TestGetValue(m, "metrics")
	if err != nil {
		t.Fatalf("TestGetValue() error = %v", err)
	}
	if value.Timespan.Nanos == 0 {
		t.Error("elapsed time must be non-zero")
	}

	// A stop without a start is an invalid_state error.
	client.StopTimespan(m, UnitNanosecond)
	n, err := client.TestGetNumRecordedErrors(m, ErrorInvalidState, "metrics")
	if err != nil {
		t.Fatalf("invalid_state error not recorded: %v", err)
	}
	if n != 1 {
		t.Errorf("invalid_state count = %d, expected 1", n)
	}
}

func TestTimespan_CancelDiscards(t *testing.T) {
	client, _ := newTestClient(t)

	m := MetricConfig{
		Identity:    MetricIdentity{Category: "app", Name: "aborted"},
		Lifetime:    LifetimePing,
		SendInPings: []string{"metrics"},
	}

	client.StartTimespan(m)
	client.CancelTimespan(m)
	client.StopTimespan(m, UnitMillisecond)

	if client.TestHasValue(m, "metrics") {
		t.Error("cancelled timespan must not record a value")
	}
}

func TestRegisterPing_DuplicateRecordsError(t *testing.T) {
	client, _ := newTestClient(t)

	client.RegisterPing(PingConfig{Name: "dup", IncludeClientID: true})
	client.RegisterPing(PingConfig{Name: "dup", IncludeClientID: false})

	registerMeta := MetricConfig{
		Identity:    MetricIdentity{Category: "beacon", Name: "register_ping"},
		Lifetime:    LifetimePing,
		SendInPings: []string{"metrics"},
	}
	n, err := client.TestGetNumRecordedErrors(registerMeta, ErrorInvalidState, "metrics")
	if err != nil {
		t.Fatalf("invalid_state error not recorded: %v", err)
	}
	if n != 1 {
		t.Errorf("invalid_state count = %d, expected 1", n)
	}
}

func TestSetUploadEnabled(t *testing.T) {
	client, transport := newTestClient(t)

	client.RegisterPing(PingConfig{Name: "custom", IncludeClientID: true})
	client.AddCounter(counterConfig("launches", "custom"), 1)
	client.SubmitPing("custom")

	client.SetUploadEnabled(false)
	if err := client.DrainQueue(context.Background()); !errors.Is(err, types.ErrUploadsDisabled) {
		t.Fatalf("DrainQueue() = %v, expected ErrUploadsDisabled", err)
	}
	if transport.attempts != 0 {
		t.Error("disabled client must not deliver")
	}

	// Data stayed queued; re-enabling delivers it.
	client.SetUploadEnabled(true)
	if err := client.DrainQueue(context.Background()); err != nil {
		t.Fatalf("DrainQueue() after re-enable error = %v", err)
	}
	if transport.attempts != 1 {
		t.Errorf("attempts = %d, expected 1 after re-enable", transport.attempts)
	}
}

func TestReset_WipesStateAndRotatesIdentity(t *testing.T) {
	client, _ := newTestClient(t)

	client.RegisterPing(PingConfig{Name: "custom", IncludeClientID: true})
	m := counterConfig("launches", "custom")
	client.AddCounter(m, 5)
	client.SubmitPing("custom")
	oldID := client.TestClientID()

	if err := client.TestReset(); err != nil {
		t.Fatalf("TestReset() error = %v", err)
	}

	if client.TestHasValue(m, "custom") {
		t.Error("stored values must be wiped")
	}
	count, err := client.PendingPingCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("PendingPingCount() = %d, expected 0 after reset", count)
	}
	if client.TestClientID() == oldID {
		t.Error("reset must mint a fresh client_id")
	}
	if !client.TestHasPing("custom") {
		t.Error("ping registrations must survive a reset")
	}

	// Sequence numbering restarts from zero.
	transport := &scriptTransport{}
	client.AddCounter(m, 1)
	client.SubmitPing("custom")
	client.scheduler = upload.NewScheduler(client.queue, transport, client.store, upload.SchedulerConfig{
		Endpoint:    "https://collector.example.com",
		BackoffSeed: time.Minute,
		BackoffCap:  time.Hour,
	}, client.log)
	if err := client.DrainQueue(context.Background()); err != nil {
		t.Fatal(err)
	}
	payload := decodePayload(t, transport.bodies[0])
	seq := payload["ping_info"].(map[string]any)["seq"].(float64)
	if int(seq) != 0 {
		t.Errorf("seq after reset = %d, expected 0", int(seq))
	}
}

func TestEnqueuePendingPings_FlushesEverything(t *testing.T) {
	client, transport := newTestClient(t)

	client.RegisterPing(PingConfig{Name: "custom", IncludeClientID: true})
	client.AddCounter(counterConfig("a", "custom"), 1)
	client.AddCounter(counterConfig("b", "metrics"), 1)

	client.EnqueuePendingPings()
	if err := client.DrainQueue(context.Background()); err != nil {
		t.Fatalf("DrainQueue() error = %v", err)
	}

	// metrics and custom held data; events and baseline depend on their
	// own rules (baseline sends even when empty).
	if transport.attempts < 3 {
		t.Errorf("attempts = %d, expected at least metrics, baseline and custom", transport.attempts)
	}
}
