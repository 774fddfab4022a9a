// Package realtime is the staff dashboard's push channel: a WebSocket client
// that keeps itself connected, applies server events to the dashboard and
// forwards them to registered listeners.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/client/internal/auth"
	"github.com/kiwari-pos/client/internal/enum"
	"github.com/kiwari-pos/client/internal/notify"
	"github.com/kiwari-pos/client/internal/ui"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size accepted from the server
	maxMessageSize = 64 * 1024
)

var newline = []byte{'\n'}

// ErrTransport wraps dial and channel failures.
var ErrTransport = errors.New("real-time transport error")

// State is the connection state. Only the Client changes it.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config controls the channel and its reconnect schedule.
type Config struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"-"`
	BaseDelay        time.Duration `yaml:"reconnect_delay"`
	MaxAttempts      int           `yaml:"max_reconnect_attempts"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongWait         time.Duration `yaml:"pong_wait"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = (c.PongWait * 9) / 10
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

// View is the part of the dashboard the client writes to. *ui.Board
// implements it.
type View interface {
	AddOrder(ui.Order)
	SetOrderStatus(id int64, status string) bool
	AddRequest(ui.ServiceRequest)
	SetRequestStatus(id int64, status string) bool
	SetPaymentStatus(id int64, status string) bool
	TrackPayment(id int64, status string)
	SetStat(id, value string)
	SetConnection(text, level string)
	Chime()
}

// Notices is the notification queue. *notify.Center implements it.
type Notices interface {
	Post(notify.Notice) uuid.UUID
	ClearTag(tag string) int
}

// Listener receives the decoded payload of an event: one of the payload
// types in this package, ConnectionChange for connection_status, or the raw
// JSON for events the client does not know.
type Listener func(payload any)

// ListenerID identifies a registered listener for Off.
type ListenerID uint64

type listener struct {
	id ListenerID
	fn Listener
}

// Option configures a Client.
type Option func(*Client)

func WithView(v View) Option {
	return func(c *Client) { c.view = v }
}

func WithNotices(n Notices) Option {
	return func(c *Client) { c.notices = n }
}

// WithPaymentTracking makes payment updates for payments not yet on the view
// put a new badge there. Without it such updates only notify.
func WithPaymentTracking() Option {
	return func(c *Client) { c.trackPayments = true }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client owns one logical connection to the real-time server.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	view    View
	notices Notices

	trackPayments bool

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	cancel    context.CancelFunc
	listeners map[string][]listener
	nextID    ListenerID

	// Serialises data frames; control frames go through WriteControl.
	writeMu sync.Mutex
}

// New creates a disconnected client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg.withDefaults(),
		listeners: make(map[string][]listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	}
	if c.view == nil {
		c.view = ui.NewBoard()
	}
	if c.notices == nil {
		center := notify.NewCenter(notify.DefaultTTL, 0)
		center.OnShow(notify.LogNotice)
		c.notices = center
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the channel. It is a no-op while connecting, connected or
// reconnecting. From failed it resets the retry budget and dials again.
//
// The first dial runs on the caller's goroutine and is bounded by ctx. If it
// fails the error is returned and the reconnect schedule starts in the
// background; Disconnect stops it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	restored := c.state == StateFailed
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.state = StateConnecting
	c.cancel = cancel
	c.mu.Unlock()

	c.checkToken()
	c.view.SetConnection("Connecting...", enum.LevelInfo)
	c.emit(EventConnectionStatus, ConnectionChange{State: StateConnecting})

	dialCtx, cancelDial := context.WithCancel(ctx)
	stop := context.AfterFunc(runCtx, cancelDial)
	conn, err := c.dial(dialCtx)
	stop()
	cancelDial()

	if err != nil {
		if runCtx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		log.Printf("real-time connection error: %v", err)
		c.view.SetConnection("Connection Error", enum.LevelError)
		c.connectionNotice(enum.LevelError, "Real-time updates connection failed - retrying...")
		go c.run(runCtx, nil)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if c.connected(runCtx, conn, restored) {
		go c.run(runCtx, conn)
	}
	return nil
}

// Disconnect closes the channel on purpose. No reconnect follows and no
// connection-lost notice is shown.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
	}

	log.Printf("disconnected from real-time server")
	c.view.SetConnection("Disconnected", enum.LevelWarning)
	c.emit(EventConnectionStatus, ConnectionChange{State: StateDisconnected, Reason: "client disconnect"})
}

// run serves conn and reconnects after unexpected drops until the budget is
// spent or the client is disconnected.
func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	for {
		if conn != nil {
			err := c.serve(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			c.lost(ctx, err)
		}
		var failed bool
		conn, failed = c.reconnect(ctx)
		if failed {
			c.announceFailed(ctx)
		}
		if conn == nil {
			return
		}
	}
}

// newBackOff yields BaseDelay × 2^(attempt−1) for MaxAttempts attempts and
// then backoff.Stop.
func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.cfg.BaseDelay << c.cfg.MaxAttempts
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts))
}

// reconnect runs one retry schedule. It returns the new connection, or nil
// with failed set when the budget ran out.
func (c *Client) reconnect(ctx context.Context) (conn *websocket.Conn, failed bool) {
	b := c.newBackOff()
	for attempt := 1; ; attempt++ {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			c.mu.Lock()
			defer c.mu.Unlock()
			if ctx.Err() != nil {
				return nil, false
			}
			c.state = StateFailed
			log.Printf("max reconnection attempts reached")
			return nil, true
		}

		if !c.setState(ctx, StateReconnecting, "retrying") {
			return nil, false
		}
		log.Printf("attempting to reconnect in %v (attempt %d)", delay, attempt)
		c.view.SetConnection(fmt.Sprintf("Reconnecting... (%d/%d)", attempt, c.cfg.MaxAttempts), enum.LevelInfo)
		if attempt > 1 {
			c.connectionNotice(enum.LevelInfo, fmt.Sprintf("Reconnection attempt %d/%d", attempt, c.cfg.MaxAttempts))
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, false
		case <-t.C:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false
			}
			log.Printf("real-time connection error: %v", err)
			c.view.SetConnection("Connection Error", enum.LevelError)
			c.connectionNotice(enum.LevelError, "Real-time updates connection failed - retrying...")
			continue
		}
		if !c.connected(ctx, conn, true) {
			return nil, false
		}
		return conn, false
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if c.cfg.Token != "" {
		q := u.Query()
		q.Set("token", c.cfg.Token)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s://%s%s: %w (status %d)", u.Scheme, u.Host, u.Path, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s://%s%s: %w", u.Scheme, u.Host, u.Path, err)
	}
	return conn, nil
}

func (c *Client) checkToken() {
	if c.cfg.Token == "" {
		return
	}
	claims, err := auth.Inspect(c.cfg.Token)
	if err != nil {
		log.Printf("warning: session token unreadable: %v", err)
		return
	}
	if claims.Expired(time.Now()) {
		log.Printf("warning: session token expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339))
	}
}

// setState moves to s unless the run was cancelled, announcing real changes.
func (c *Client) setState(ctx context.Context, s State, reason string) bool {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed {
		c.emit(EventConnectionStatus, ConnectionChange{State: s, Reason: reason})
	}
	return true
}

func (c *Client) connected(ctx context.Context, conn *websocket.Conn, restored bool) bool {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	log.Printf("connected to real-time server")
	c.view.SetConnection("Connected", enum.LevelSuccess)
	c.notices.ClearTag(notify.TagConnection)
	if restored {
		c.connectionNotice(enum.LevelSuccess, "Real-time updates restored")
	}
	c.emit(EventConnectionStatus, ConnectionChange{State: StateConnected})
	return true
}

func (c *Client) lost(ctx context.Context, err error) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	c.mu.Unlock()

	log.Printf("disconnected from real-time server: %v", err)
	c.view.SetConnection("Disconnected", enum.LevelWarning)
	c.connectionNotice(enum.LevelWarning, "Connection lost - attempting to reconnect...")
	c.emit(EventConnectionStatus, ConnectionChange{State: StateReconnecting, Reason: err.Error()})
}

func (c *Client) announceFailed(ctx context.Context) {
	c.mu.Lock()
	current := ctx.Err() == nil && c.state == StateFailed
	c.mu.Unlock()
	if !current {
		return
	}

	c.view.SetConnection("Connection Failed", enum.LevelError)
	c.notices.Post(notify.Notice{
		Level:      enum.LevelError,
		Message:    "Real-time updates unavailable - please refresh the page",
		Tag:        notify.TagConnection,
		Persistent: true,
	})
	c.emit(EventConnectionStatus, ConnectionChange{State: StateFailed, Reason: "max reconnection attempts reached"})
}

// serve reads frames from conn until it fails. A separate goroutine keeps the
// connection alive with pings.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer conn.Close()
	defer close(stop)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	go c.ping(conn, stop)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			return err
		}
		// The server may batch several frames into one message
		for _, frame := range bytes.Split(message, newline) {
			frame = bytes.TrimSpace(frame)
			if len(frame) == 0 {
				continue
			}
			c.handle(frame)
		}
	}
}

func (c *Client) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Printf("websocket ping error: %v", err)
				return
			}
		}
	}
}

// send writes one event if connected. Nothing is queued and no error is
// surfaced: a closed channel simply drops the event.
func (c *Client) send(event string, payload any) {
	c.mu.Lock()
	conn := c.conn
	ok := c.state == StateConnected && conn != nil
	c.mu.Unlock()
	if !ok {
		return
	}

	env := Envelope{Type: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Printf("failed to marshal %s: %v", event, err)
			return
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("failed to marshal %s: %v", event, err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

func (c *Client) notice(level, message string) {
	c.notices.Post(notify.Notice{Level: level, Message: message})
}

func (c *Client) connectionNotice(level, message string) {
	c.notices.Post(notify.Notice{Level: level, Message: message, Tag: notify.TagConnection})
}
