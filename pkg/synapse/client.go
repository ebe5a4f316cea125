// Package synapse is the embeddable job-runner client: it registers
// job signatures with the coordinator, listens for triggers on the
// event channel, executes registered handlers, and reports execution
// telemetry back through the ingestion endpoints.
package synapse

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/common"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/ingest"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/queue"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/runner"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/socket"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

// Handler is a registered job handler.
type Handler = runner.Handler

// ConnectionState is the event-channel connection state.
type ConnectionState = socket.State

// Connection states
const (
	StateDisconnected  = socket.StateDisconnected
	StateConnecting    = socket.StateConnecting
	StateConnected     = socket.StateConnected
	StateAuthenticated = socket.StateAuthenticated
)

// Config configures the embedded client. APIKey is mandatory; every
// other field has a default. Explicit values take precedence over the
// SYNAPSE_* environment fallbacks.
type Config struct {
	Endpoint   string // Coordinator base URL (default env or http://localhost:5000)
	APIKey     string // Credential sent on every request
	OrgID      string // Optional organization identifier
	AppID      string // Optional application identifier
	AppVersion string // Explicit application version; else inferred

	BatchSize     int           // Execution events per flush (default 50)
	FlushInterval time.Duration // Periodic flush cadence (default 2s)

	DisableConsoleCapture bool // Skip stdout/stderr mirroring during handler runs
	MaxOutputLength       int  // Truncation limit for captured text (default 10000)

	Logger arbor.ILogger // Defaults to the shared console logger

	// OnStateChange observes event-channel transitions. Authentication
	// errors are surfaced here and nowhere else; the client never
	// terminates itself on them.
	OnStateChange func(state ConnectionState, err error)
}

// Client is one coordinator connection with its own handler registry,
// execution queue, and version cache.
type Client struct {
	id       string
	config   common.ClientConfig
	logger   arbor.ILogger
	versions *common.VersionResolver

	ingest     *ingest.Client
	flusher    *queue.Flusher
	dispatcher *runner.Dispatcher
	socket     *socket.Client

	mu          sync.RWMutex
	jobVersions map[string]string // job id -> version cached at registration
}

// New constructs a client. Configuration problems (missing API key,
// unresolvable endpoint) fail here, before any network activity.
func New(cfg Config) (*Client, error) {
	cc := common.ClientConfig{
		Endpoint:        cfg.Endpoint,
		APIKey:          cfg.APIKey,
		OrgID:           cfg.OrgID,
		AppID:           cfg.AppID,
		AppVersion:      cfg.AppVersion,
		BatchSize:       cfg.BatchSize,
		FlushInterval:   cfg.FlushInterval,
		CaptureConsole:  !cfg.DisableConsoleCapture,
		MaxOutputLength: cfg.MaxOutputLength,
	}
	cc.ApplyEnvFallbacks()
	if err := cc.Resolve(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = common.GetLogger()
	}

	c := &Client{
		id:          common.NewClientID(),
		config:      cc,
		logger:      logger,
		versions:    common.NewVersionResolver(cc.AppVersion),
		jobVersions: make(map[string]string),
	}

	c.ingest = ingest.NewClient(cc.Endpoint, cc.APIKey, ingest.WithLogger(logger))

	c.flusher = queue.NewFlusher(c.ingest, queue.Options{
		BatchSize:     cc.BatchSize,
		FlushInterval: cc.FlushInterval,
		AppVersion:    c.versions.AppVersion,
		JobVersion:    c.jobVersion,
	}, logger)

	c.socket = socket.NewClient(socket.Options{
		Endpoint: cc.Endpoint,
		APIKey:   cc.APIKey,
		JobIDs: func() []string {
			return c.dispatcher.JobIDs()
		},
		OnTrigger: func(trigger models.TriggerEvent) {
			c.dispatcher.Dispatch(context.Background(), trigger)
		},
		OnStateChange: cfg.OnStateChange,
	}, logger)

	c.dispatcher = runner.NewDispatcher(c.flusher, c.socket, runner.Options{
		CaptureConsole:  cc.CaptureConsole,
		MaxOutputLength: cc.MaxOutputLength,
	}, logger)

	logger.Debug().
		Str("client_id", c.id).
		Str("endpoint", cc.Endpoint).
		Msg("Synapse client created")

	return c, nil
}

// RegisterJobs validates and submits a batch of job signatures.
// Validation is all-or-nothing: any invalid signature rejects the
// whole batch before a network call is attempted. On success the
// resolved version of every job is cached so later execution events
// can be auto-filled.
func (c *Client) RegisterJobs(ctx context.Context, signatures []models.JobSignature) error {
	for i := range signatures {
		if err := signatures[i].Validate(); err != nil {
			return &models.ValidationError{JobID: signatures[i].ID, Reason: err}
		}
	}

	enriched := make([]models.JobSignature, 0, len(signatures))
	for i := range signatures {
		sig := signatures[i].Clone()
		if sig.OrgID == "" {
			sig.OrgID = c.config.OrgID
		}
		if sig.AppID == "" {
			sig.AppID = c.config.AppID
		}
		if sig.Version == "" {
			sig.Version = c.versions.AppVersion()
		}
		enriched = append(enriched, sig)
	}

	if err := c.ingest.RegisterJobs(ctx, enriched); err != nil {
		return err
	}

	c.mu.Lock()
	for _, sig := range enriched {
		c.jobVersions[sig.ID] = sig.Version
	}
	c.mu.Unlock()

	c.logger.Info().
		Int("jobs", len(enriched)).
		Msg("Job signatures registered")
	return nil
}

// Register adds a handler for a job id. May be called before or after
// Connect; while connected, room membership for the job is announced
// immediately instead of waiting for a reconnect.
func (c *Client) Register(jobID string, handler Handler) {
	c.dispatcher.Register(jobID, handler)
	c.socket.JoinJob(jobID)
}

// RegisterJob registers one signature and its handler in a single call.
func (c *Client) RegisterJob(ctx context.Context, signature models.JobSignature, handler Handler) error {
	if err := c.RegisterJobs(ctx, []models.JobSignature{signature}); err != nil {
		return err
	}
	c.Register(signature.ID, handler)
	return nil
}

// Connect starts the event channel. Reconnection is automatic until
// Stop is called.
func (c *Client) Connect() {
	c.socket.Connect()
}

// State returns the current event-channel state.
func (c *Client) State() ConnectionState {
	return c.socket.State()
}

// Enqueue queues an execution event for batched reporting. Intended
// for callers that run executions outside the trigger path.
func (c *Client) Enqueue(event *models.ExecutionEvent) {
	c.flusher.Enqueue(event)
}

// Flush drains one batch of pending execution events immediately.
// No-op when a flush is already in flight or nothing is pending.
func (c *Client) Flush(ctx context.Context) error {
	return c.flusher.Flush(ctx)
}

// Pending returns the number of queued execution events.
func (c *Client) Pending() int {
	return c.flusher.Pending()
}

// Stop tears down the event channel and the periodic flush timer. It
// does not abort running handlers; events they enqueue afterwards can
// still be drained with an explicit Flush.
func (c *Client) Stop() {
	c.socket.Stop()
	c.flusher.Stop()
	c.logger.Debug().Str("client_id", c.id).Msg("Synapse client stopped")
}

// jobVersion reads the registration version cache.
func (c *Client) jobVersion(jobID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobVersions[jobID]
}
