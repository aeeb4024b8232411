package notification

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing message. It never carries internal error detail.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is implemented by anything that can surface a message to a user
type Notifier interface {
	Notify(userID string, level Level, message string)
}

// Center keeps a bounded queue of pending notifications per user. Oldest
// entries are dropped first when a queue is full, and entries older than
// maxAge are discarded when the queue is drained.
type Center struct {
	mu       sync.Mutex
	queues   map[string][]Notification
	capacity int
	maxAge   time.Duration
	now      func() time.Time
}

func NewCenter(capacity int, maxAge time.Duration) *Center {
	if capacity <= 0 {
		capacity = 1
	}
	return &Center{
		queues:   make(map[string][]Notification),
		capacity: capacity,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Notify queues a message for userID. Messages for anonymous callers have
// nowhere to go and are only logged.
func (c *Center) Notify(userID string, level Level, message string) {
	if userID == "" {
		log.Printf("[Notify] %s (anonymous): %s", level, message)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	q := append(c.queues[userID], Notification{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   message,
		CreatedAt: c.now(),
	})
	if len(q) > c.capacity {
		q = q[len(q)-c.capacity:]
	}
	c.queues[userID] = q
}

// Drain returns and removes the user's pending notifications, oldest first
func (c *Center) Drain(userID string) []Notification {
	c.mu.Lock()
	q := c.queues[userID]
	delete(c.queues, userID)
	c.mu.Unlock()

	out := make([]Notification, 0, len(q))
	now := c.now()
	for _, n := range q {
		if c.maxAge > 0 && now.Sub(n.CreatedAt) > c.maxAge {
			continue
		}
		out = append(out, n)
	}
	return out
}
