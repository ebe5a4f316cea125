// Package socket owns the persistent event-channel connection to the
// coordinator: connect, authenticate, room membership, reconnect, and
// inbound trigger delivery.
package socket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/internal/common"
	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

// State is the connection state of the event channel.
type State string

// Connection states
const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateAuthenticated State = "authenticated"
)

// Event names on the wire
const (
	EventAuthenticate = "authenticate"
	EventJoinJob      = "join-job"
	EventTriggerAck   = "trigger:ack"

	EventAuthenticated = "authenticated"
	EventAuthError     = "authentication_error"
	EventJobTrigger    = "job:trigger"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second

	writeTimeout = 10 * time.Second
)

// Message is the JSON envelope used in both directions on the channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type authPayload struct {
	APIKey string `json:"apiKey"`
}

type joinPayload struct {
	JobID string `json:"jobId"`
}

type ackPayload struct {
	TriggerID string `json:"triggerId"`
	JobID     string `json:"jobId"`
}

// Options configures the socket client.
type Options struct {
	Endpoint string // Coordinator base URL (http/https); converted to ws/wss
	APIKey   string

	// JobIDs supplies the currently registered job ids; membership is
	// announced for each of them on every transition into connected.
	JobIDs func() []string

	// OnTrigger is invoked for every inbound job:trigger event.
	OnTrigger func(models.TriggerEvent)

	// OnStateChange observes connection state transitions. err is
	// non-nil for disconnects and authentication errors. The client
	// never terminates itself on authentication errors; that policy
	// belongs to the embedder.
	OnStateChange func(state State, err error)
}

// Client maintains the event-channel connection. Reconnection is
// automatic with capped exponential backoff until Stop is called.
type Client struct {
	url    string
	opts   Options
	logger arbor.ILogger
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	writeMu sync.Mutex
	stop    chan struct{}
	started bool
}

// NewClient creates a socket client for the given coordinator endpoint.
func NewClient(opts Options, logger arbor.ILogger) *Client {
	return &Client{
		url:    wsURL(opts.Endpoint),
		opts:   opts,
		logger: logger,
		dialer: websocket.DefaultDialer,
		state:  StateDisconnected,
		stop:   make(chan struct{}),
	}
}

// wsURL converts an http(s) endpoint into the channel URL.
func wsURL(endpoint string) string {
	url := endpoint
	if strings.HasPrefix(url, "https://") {
		url = "wss://" + strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/ws"
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. Safe to call once; subsequent
// calls are no-ops.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	common.SafeGo(c.logger, "socket.run", c.run)
}

// Stop tears down the connection and halts reconnection attempts.
// It does not wait for in-flight trigger handlers.
func (c *Client) Stop() {
	c.mu.Lock()
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// run is the connect/read/reconnect loop.
func (c *Client) run() {
	delay := reconnectBaseDelay
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		c.setState(StateConnecting, nil)
		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.setState(StateDisconnected, errors.Wrap(err, "connect failed"))
			c.logger.Warn().
				Err(err).
				Str("url", c.url).
				Dur("retry_in", delay).
				Msg("Event channel connect failed")
			if !c.waitOrStop(delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = reconnectBaseDelay

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected, nil)
		c.logger.Info().Str("url", c.url).Msg("Event channel connected")

		c.announce()
		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		select {
		case <-c.stop:
			return
		default:
		}
		c.setState(StateDisconnected, errors.New("event channel disconnected"))
		if !c.waitOrStop(delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

// announce authenticates and replays room membership for every
// registered job. Executed on every transition into connected so a
// reconnect restores trigger routing.
func (c *Client) announce() {
	if err := c.send(EventAuthenticate, authPayload{APIKey: c.opts.APIKey}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send authenticate")
		return
	}
	if c.opts.JobIDs == nil {
		return
	}
	for _, jobID := range c.opts.JobIDs() {
		if err := c.send(EventJoinJob, joinPayload{JobID: jobID}); err != nil {
			c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to join job room")
		}
	}
}

// JoinJob announces room membership for one job id. No-op while
// disconnected; membership is replayed on the next connect.
func (c *Client) JoinJob(jobID string) {
	c.mu.Lock()
	connected := c.state == StateConnected || c.state == StateAuthenticated
	c.mu.Unlock()
	if !connected {
		return
	}
	if err := c.send(EventJoinJob, joinPayload{JobID: jobID}); err != nil {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to join job room")
	}
}

// Ack reports trigger completion. Best-effort: failures are logged at
// debug level and never retried.
func (c *Client) Ack(triggerID, jobID string) {
	if err := c.send(EventTriggerAck, ackPayload{TriggerID: triggerID, JobID: jobID}); err != nil {
		c.logger.Debug().
			Err(err).
			Str("trigger_id", triggerID).
			Str("job_id", jobID).
			Msg("Trigger ack not delivered")
	}
}

func (c *Client) send(event string, data interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("event channel not connected")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s payload", event)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(Message{Event: event, Data: payload})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.stop:
			default:
				c.logger.Debug().Err(err).Msg("Event channel read failed")
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Event {
	case EventAuthenticated:
		c.setState(StateAuthenticated, nil)
		c.logger.Debug().Msg("Event channel authenticated")

	case EventAuthError:
		// Observational only: surfaced to the embedder, connection kept
		c.notify(c.State(), errors.Newf("authentication error: %s", string(msg.Data)))
		c.logger.Warn().Str("detail", string(msg.Data)).Msg("Event channel authentication error")

	case EventJobTrigger:
		var trigger models.TriggerEvent
		if err := json.Unmarshal(msg.Data, &trigger); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed trigger payload")
			return
		}
		if c.opts.OnTrigger != nil {
			common.SafeGo(c.logger, "socket.trigger", func() {
				c.opts.OnTrigger(trigger)
			})
		}

	default:
		c.logger.Debug().Str("event", msg.Event).Msg("Ignoring unknown channel event")
	}
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.notify(state, err)
}

func (c *Client) notify(state State, err error) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state, err)
	}
}

func (c *Client) waitOrStop(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.stop:
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMaxDelay {
		d = reconnectMaxDelay
	}
	return d
}
