package beacon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/solatis/beacon/internal/core/config"
	"github.com/solatis/beacon/internal/core/db"
	"github.com/solatis/beacon/internal/dispatch"
	"github.com/solatis/beacon/internal/metrics"
	"github.com/solatis/beacon/internal/pings"
	"github.com/solatis/beacon/internal/types"
	"github.com/solatis/beacon/internal/upload"
)

// Config is the host-facing configuration. Alias of the internal
// config type so hosts never import internal packages.
type Config = config.Config

// DefaultConfig returns production defaults; AppID and ServerEndpoint
// must still be set.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads configuration from a file plus BEACON_* environment
// variables.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Client is the telemetry context object. One per host application;
// construct with New, close with Close.
type Client struct {
	cfg        *Config
	conn       *sqlx.DB
	queries    *db.Queries
	store      *metrics.Store
	registry   *pings.Registry
	assembler  *pings.Assembler
	queue      *upload.Queue
	scheduler  *upload.Scheduler
	dispatcher *dispatch.Dispatcher
	log        *logrus.Logger

	// stateMu guards client identity fields, which TestReset swaps.
	stateMu      sync.RWMutex
	clientID     types.ClientID
	firstRunDate string
	firstRun     bool

	// timespans tracks running timers; touched only on the dispatcher
	// context.
	timespans map[string]time.Time
}

// Option customizes Client construction.
type Option func(*options)

type options struct {
	transport upload.Transport
	logger    *logrus.Logger
}

// WithTransport replaces the HTTP transport. Tests inject fakes here;
// hosts with bespoke TLS or proxy needs inject their own client.
func WithTransport(t upload.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithLogger replaces the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New constructs a Client: opens and migrates the data store, loads or
// creates the client identity, registers the built-in pings, and
// starts the dispatcher. The returned Client is ready to record.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = logrus.New()
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			log.SetLevel(level)
		}
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open data store: %w", err)
	}
	if err := db.MigrateUp(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate data store: %w", err)
	}
	queries, err := db.LoadQueries(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		conn:      conn,
		queries:   queries,
		store:     metrics.NewStore(queries, log),
		registry:  pings.NewRegistry(),
		log:       log,
		timespans: make(map[string]time.Time),
	}

	if err := c.loadClientState(); err != nil {
		conn.Close()
		return nil, err
	}

	c.assembler = pings.NewAssembler(c.registry, c.store, queries, c, log)
	c.queue = upload.NewQueue(queries, c.store, cfg.AppID, cfg.MaxPendingPings, log)

	transport := o.transport
	if transport == nil {
		transport = upload.NewHTTPTransport(cfg.UploadTimeout)
	}
	c.scheduler = upload.NewScheduler(c.queue, transport, c.store, upload.SchedulerConfig{
		Endpoint:    cfg.ServerEndpoint,
		DebugTag:    cfg.DebugViewTag,
		BackoffSeed: cfg.BackoffSeed,
		BackoffCap:  cfg.BackoffCap,
	}, log)
	c.scheduler.SetEnabled(cfg.UploadEnabled)

	c.dispatcher = dispatch.New(dispatch.DefaultQueueSize, cfg.TestingMode, log)

	log.WithFields(logrus.Fields{
		"app_id":    cfg.AppID,
		"first_run": c.firstRun,
	}).Debug("telemetry client initialized")
	return c, nil
}

// loadClientState reads or creates the persistent client identity.
// The first_run_date key doubles as the first-run marker: absent means
// cold start, present means restart.
func (c *Client) loadClientState() error {
	var firstRunDate string
	err := c.queries.Get("get-client-state", &firstRunDate, "first_run_date")
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.firstRun = true
		firstRunDate = time.Now().UTC().Format(time.RFC3339)
		if _, err := c.queries.Exec("upsert-client-state", "first_run_date", firstRunDate); err != nil {
			return fmt.Errorf("failed to store first run date: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read client state: %w", err)
	}
	c.firstRunDate = firstRunDate

	var rawClientID string
	err = c.queries.Get("get-client-state", &rawClientID, "client_id")
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := types.NewClientID()
		if _, err := c.queries.Exec("upsert-client-state", "client_id", string(id)); err != nil {
			return fmt.Errorf("failed to store client id: %w", err)
		}
		c.clientID = id
	case err != nil:
		return fmt.Errorf("failed to read client id: %w", err)
	default:
		id, perr := types.ParseClientID(rawClientID)
		if perr != nil {
			// A corrupt ID is replaced, not fatal.
			id = types.NewClientID()
			if _, err := c.queries.Exec("upsert-client-state", "client_id", string(id)); err != nil {
				return fmt.Errorf("failed to replace client id: %w", err)
			}
		}
		c.clientID = id
	}
	return nil
}

// IsFirstRun reports whether this Client initialized a fresh data
// store (cold start) rather than reopening one (restart).
func (c *Client) IsFirstRun() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.firstRun
}

// RegisterPing declares an instrumentation ping. Built-ins are already
// present. Duplicate names keep the first registration and record an
// invalid_state error; registration never fails the host.
func (c *Client) RegisterPing(cfg types.PingConfig) {
	if err := c.registry.Register(cfg); err != nil {
		c.log.WithField("ping", cfg.Name).Warn("duplicate ping registration ignored")
		c.dispatcher.Launch(func() {
			c.store.RecordStandaloneError("register_ping", types.ErrorInvalidState)
		})
	}
}

// SubmitPing assembles the named ping and pushes it onto the durable
// upload queue. Fire-and-forget; an unknown name is a recorded no-op
// and never wakes the upload scheduler.
func (c *Client) SubmitPing(name string) {
	c.dispatcher.Launch(func() { c.submitPing(name) })
}

// submitPing runs on the dispatcher context.
func (c *Client) submitPing(name string) {
	ping, err := c.assembler.Assemble(name)
	if err != nil || ping == nil {
		return
	}
	if _, err := c.queue.Enqueue(ping); err != nil {
		c.log.WithError(err).WithField("ping", name).Warn("failed to enqueue ping")
	}
}

// EnqueuePendingPings assembles every registered ping that has data
// and queues it for upload. Hosts call this for an immediate flush
// (shutdown, user request) and then DrainQueue.
func (c *Client) EnqueuePendingPings() {
	c.dispatcher.Launch(func() {
		for _, cfg := range c.registry.ListAll() {
			c.submitPing(cfg.Name)
		}
	})
}

// DrainQueue runs one upload drain cycle on the calling goroutine.
// Hosts invoke it from their own scheduler (periodic timer, foreground
// hook); it must never be called from a recording path. Concurrent
// calls are rejected with ErrDrainInProgress so delivery order stays
// deterministic.
func (c *Client) DrainQueue(ctx context.Context) error {
	return c.scheduler.DrainQueue(ctx)
}

// SetUploadEnabled switches delivery on or off at runtime. An active
// drain cycle stops after its current attempt; the queue and all
// stored data stay intact.
func (c *Client) SetUploadEnabled(enabled bool) {
	c.scheduler.SetEnabled(enabled)
}

// PendingPingCount reports the durable queue depth. Inspection only.
func (c *Client) PendingPingCount() (int, error) {
	return c.queue.Count()
}

// Close drains the dispatcher and closes the data store. The Client
// must not be used afterwards.
func (c *Client) Close() error {
	c.dispatcher.Shutdown()
	return c.conn.Close()
}
