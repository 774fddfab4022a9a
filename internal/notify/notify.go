// Package notify implements the transient user notification queue shared by
// the cart, the order editor and the real-time client.
package notify

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a non-persistent notice stays visible.
const DefaultTTL = 5 * time.Second

// TagConnection marks notices about the real-time connection so they can be
// cleared together once the connection recovers.
const TagConnection = "connection"

// Notice is a single user-facing notification.
type Notice struct {
	ID         uuid.UUID `json:"id"`
	Level      string    `json:"level"`
	Title      string    `json:"title,omitempty"`
	Message    string    `json:"message"`
	Tag        string    `json:"tag,omitempty"`
	Persistent bool      `json:"persistent"`
	CreatedAt  time.Time `json:"created_at"`
}

// Center is a thread-safe, bounded queue of visible notices.
// Non-persistent notices dismiss themselves after the TTL.
type Center struct {
	mu      sync.Mutex
	notices []Notice
	timers  map[uuid.UUID]*time.Timer
	ttl     time.Duration
	cap     int

	onShow []func(Notice)
}

// NewCenter creates a notification center. ttl <= 0 uses DefaultTTL and
// capacity <= 0 keeps at most 50 notices.
func NewCenter(ttl time.Duration, capacity int) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = 50
	}
	return &Center{
		notices: make([]Notice, 0, capacity),
		timers:  make(map[uuid.UUID]*time.Timer),
		ttl:     ttl,
		cap:     capacity,
	}
}

// OnShow registers a hook called for every posted notice, outside the lock.
func (c *Center) OnShow(fn func(Notice)) {
	c.mu.Lock()
	c.onShow = append(c.onShow, fn)
	c.mu.Unlock()
}

// Notify posts a plain notice. It satisfies the Notifier interfaces of the
// cart and order-edit packages.
func (c *Center) Notify(level, title, message string) {
	c.Post(Notice{Level: level, Title: title, Message: message})
}

// Post adds a notice and returns its id.
func (c *Center) Post(n Notice) uuid.UUID {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	c.mu.Lock()
	if len(c.notices) >= c.cap {
		// Drop oldest
		c.stopTimerLocked(c.notices[0].ID)
		copy(c.notices, c.notices[1:])
		c.notices = c.notices[:len(c.notices)-1]
	}
	c.notices = append(c.notices, n)
	if !n.Persistent {
		id := n.ID
		c.timers[id] = time.AfterFunc(c.ttl, func() { c.Dismiss(id) })
	}
	hooks := append([]func(Notice){}, c.onShow...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(n)
	}
	return n.ID
}

// Dismiss removes a notice. It reports whether the notice was still visible.
func (c *Center) Dismiss(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.notices {
		if n.ID == id {
			c.stopTimerLocked(id)
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			return true
		}
	}
	return false
}

// ClearTag removes every visible notice carrying tag and returns how many went.
func (c *Center) ClearTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.notices[:0]
	removed := 0
	for _, n := range c.notices {
		if n.Tag == tag {
			c.stopTimerLocked(n.ID)
			removed++
			continue
		}
		kept = append(kept, n)
	}
	c.notices = kept
	return removed
}

// Active returns the visible notices, oldest first.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}

func (c *Center) stopTimerLocked(id uuid.UUID) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

// LogNotice writes a notice to the standard logger. Used as an OnShow hook by
// headless processes.
func LogNotice(n Notice) {
	if n.Title != "" {
		log.Printf("[%s] %s: %s", n.Level, n.Title, n.Message)
		return
	}
	log.Printf("[%s] %s", n.Level, n.Message)
}
