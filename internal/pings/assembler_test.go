package pings

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/solatis/beacon/internal/core/db"
	"github.com/solatis/beacon/internal/metrics"
	"github.com/solatis/beacon/internal/types"
)

// fakeInfo is a ClientInfoProvider with a fixed identity.
type fakeInfo struct{}

func (fakeInfo) ClientInfo(includeClientID bool) map[string]any {
	info := map[string]any{
		"telemetry_sdk_build": "test",
		"os":                  "linux",
	}
	if includeClientID {
		info["client_id"] = "8a33ecbe-c425-4bd0-b0b1-2e6ff22901a9"
	}
	return info
}

func newTestAssembler(t *testing.T) (*Assembler, *Registry, *metrics.Store, *db.Queries) {
	t.Helper()

	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "beacon.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.MigrateUp(conn); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	queries, err := db.LoadQueries(conn)
	if err != nil {
		t.Fatalf("failed to load queries: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	store := metrics.NewStore(queries, log)
	registry := NewRegistry()
	return NewAssembler(registry, store, queries, fakeInfo{}, log), registry, store, queries
}

func decodeBody(t *testing.T, ping *AssembledPing) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(ping.Body, &body); err != nil {
		t.Fatalf("ping body is not valid JSON: %v", err)
	}
	return body
}

func counterMeta(name string, pings ...string) metrics.CommonMetricData {
	return metrics.CommonMetricData{
		Identity:    types.MetricIdentity{Category: "test", Name: name},
		Lifetime:    types.LifetimePing,
		SendInPings: pings,
	}
}

func TestAssemble_UnknownPing(t *testing.T) {
	assembler, _, _, _ := newTestAssembler(t)

	// Repeated submissions of an unknown name stay a no-op.
	for i := 0; i < 3; i++ {
		ping, err := assembler.Assemble("no-such-ping")
		if !errors.Is(err, types.ErrUnknownPing) {
			t.Fatalf("Assemble(unknown) error = %v, expected ErrUnknownPing", err)
		}
		if ping != nil {
			t.Fatal("Assemble(unknown) returned a ping")
		}
	}
}

func TestAssemble_EmptyPingSkipped(t *testing.T) {
	assembler, _, _, _ := newTestAssembler(t)

	// The metrics builtin has SendIfEmpty false and holds no data.
	ping, err := assembler.Assemble(MetricsPing)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if ping != nil {
		t.Error("empty metrics ping must not assemble")
	}
}

func TestAssemble_SendIfEmpty(t *testing.T) {
	assembler, _, _, _ := newTestAssembler(t)

	// The baseline builtin sends even when empty.
	ping, err := assembler.Assemble(BaselinePing)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if ping == nil {
		t.Fatal("baseline ping must assemble even when empty")
	}

	body := decodeBody(t, ping)
	if _, ok := body["metrics"]; ok {
		t.Error("empty ping must omit the metrics section")
	}
	if _, ok := body["ping_info"]; !ok {
		t.Error("ping_info section missing")
	}
}

func TestAssemble_PayloadShape(t *testing.T) {
	assembler, registry, store, _ := newTestAssembler(t)

	if err := registry.Register(types.PingConfig{Name: "custom", IncludeClientID: true}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	store.AddCounter(counterMeta("hits", "custom"), 3)
	store.RecordString(metrics.CommonMetricData{
		Identity:    types.MetricIdentity{Category: "test", Name: "channel"},
		Lifetime:    types.LifetimeApplication,
		SendInPings: []string{"custom"},
	}, "beta")

	ping, err := assembler.Assemble("custom")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if ping == nil {
		t.Fatal("Assemble() returned nil for non-empty ping")
	}
	if ping.DocType != "custom" {
		t.Errorf("DocType = %q, expected custom", ping.DocType)
	}
	if _, err := types.ParseDocumentID(string(ping.DocumentID)); err != nil {
		t.Errorf("DocumentID %q is not a UUID: %v", ping.DocumentID, err)
	}

	body := decodeBody(t, ping)

	pingInfo, ok := body["ping_info"].(map[string]any)
	if !ok {
		t.Fatal("ping_info missing")
	}
	for _, field := range []string{"seq", "start_time", "end_time"} {
		if _, ok := pingInfo[field]; !ok {
			t.Errorf("ping_info missing %q", field)
		}
	}

	clientInfo, ok := body["client_info"].(map[string]any)
	if !ok {
		t.Fatal("client_info missing")
	}
	if _, ok := clientInfo["client_id"]; !ok {
		t.Error("client_id missing despite IncludeClientID")
	}

	section, ok := body["metrics"].(map[string]any)
	if !ok {
		t.Fatal("metrics section missing")
	}
	counters, ok := section["counter"].(map[string]any)
	if !ok {
		t.Fatal("counter kind missing")
	}
	if counters["test.hits"] != float64(3) {
		t.Errorf("test.hits = %v, expected 3", counters["test.hits"])
	}
	strings, ok := section["string"].(map[string]any)
	if !ok {
		t.Fatal("string kind missing")
	}
	if strings["test.channel"] != "beta" {
		t.Errorf("test.channel = %v, expected beta", strings["test.channel"])
	}
}

func TestAssemble_OmitsClientID(t *testing.T) {
	assembler, registry, store, _ := newTestAssembler(t)

	if err := registry.Register(types.PingConfig{Name: "anon", IncludeClientID: false}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	store.AddCounter(counterMeta("hits", "anon"), 1)

	ping, err := assembler.Assemble("anon")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	body := decodeBody(t, ping)
	clientInfo := body["client_info"].(map[string]any)
	if _, present := clientInfo["client_id"]; present {
		t.Error("client_id must be absent (not null) when IncludeClientID is false")
	}
}

func TestAssemble_SequenceIncrements(t *testing.T) {
	assembler, registry, store, _ := newTestAssembler(t)

	if err := registry.Register(types.PingConfig{Name: "seqping", IncludeClientID: false, SendIfEmpty: true}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for want := 0; want < 3; want++ {
		store.AddCounter(counterMeta("n", "seqping"), 1)
		ping, err := assembler.Assemble("seqping")
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		body := decodeBody(t, ping)
		seq := body["ping_info"].(map[string]any)["seq"].(float64)
		if int(seq) != want {
			t.Errorf("seq = %d, expected %d", int(seq), want)
		}
	}
}

func TestAssemble_FailureKeepsData(t *testing.T) {
	assembler, registry, store, queries := newTestAssembler(t)

	if err := registry.Register(types.PingConfig{Name: "frail", IncludeClientID: false}); err != nil {
		t.Fatal(err)
	}
	meta := counterMeta("kept", "frail")
	store.AddCounter(meta, 4)

	// Break sequence persistence mid-assembly: the bump fails after the
	// snapshot, and the rollback must put the cleared data back.
	if _, err := queries.DB().Exec("DROP TABLE ping_sequences"); err != nil {
		t.Fatalf("failed to drop sequence table: %v", err)
	}

	if _, err := assembler.Assemble("frail"); err == nil {
		t.Fatal("Assemble() succeeded without a sequence table")
	}

	value, err := store.TestGetValue(meta, "frail")
	if err != nil {
		t.Fatalf("failed assembly cleared recorded data: %v", err)
	}
	if value.Counter != 4 {
		t.Errorf("counter = %d, expected 4 after failed assembly", value.Counter)
	}
}

func TestAssemble_ClearsPingLifetime(t *testing.T) {
	assembler, registry, store, _ := newTestAssembler(t)

	if err := registry.Register(types.PingConfig{Name: "p1", IncludeClientID: false}); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(types.PingConfig{Name: "p2", IncludeClientID: false}); err != nil {
		t.Fatal(err)
	}

	shared := counterMeta("shared", "p1", "p2")
	store.AddCounter(shared, 9)

	if _, err := assembler.Assemble("p1"); err != nil {
		t.Fatalf("Assemble(p1) error = %v", err)
	}

	// p1's copy cleared, p2 keeps its own.
	if store.TestHasValue(shared, "p1") {
		t.Error("p1 store must be cleared after assembly")
	}
	value, err := store.TestGetValue(shared, "p2")
	if err != nil {
		t.Fatalf("p2 lost its value: %v", err)
	}
	if value.Counter != 9 {
		t.Errorf("p2 counter = %d, expected 9", value.Counter)
	}
}
