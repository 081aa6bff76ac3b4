package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification defaults shared by every push.
const (
	NotificationIcon  = "logo-192x192.png"
	NotificationBadge = "logo-192x192.png"

	ActionOpen  = "open"
	ActionClose = "close"

	DefaultInboxSize = 50
)

// ErrNotificationNotFound is returned when clicking an unknown notification.
var ErrNotificationNotFound = errors.New("notification not found")

// PushPayload is the JSON body of a push event.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
	URL   string `json:"url"`
}

// Action is a button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is a rendered push event.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Icon      string    `json:"icon"`
	Badge     string    `json:"badge"`
	Image     string    `json:"image,omitempty"`
	Data      string    `json:"data"`
	Actions   []Action  `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier shows notifications and closes them when clicked.
type Notifier interface {
	Show(ctx context.Context, n *Notification) error
	Dismiss(ctx context.Context, id string) (*Notification, bool)
}

// NewNotification renders a push payload.
func NewNotification(p PushPayload) *Notification {
	return &Notification{
		ID:    uuid.NewString(),
		Title: p.Title,
		Body:  p.Body,
		Icon:  NotificationIcon,
		Badge: NotificationBadge,
		Image: p.Image,
		Data:  p.URL,
		Actions: []Action{
			{Action: ActionOpen, Title: "Abrir"},
			{Action: ActionClose, Title: "Cerrar"},
		},
		CreatedAt: time.Now(),
	}
}

// Push renders data as a notification and shows it. An empty payload is
// ignored and returns a nil notification.
func (c *Channel) Push(ctx context.Context, data []byte) (*Notification, error) {
	if len(data) == 0 {
		c.logger.Debug().Msg("Ignoring push without payload")
		return nil, nil
	}

	var p PushPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	n := NewNotification(p)
	if err := c.notifier.Show(ctx, n); err != nil {
		return nil, fmt.Errorf("show notification: %w", err)
	}
	c.logger.Info().Str("notification", n.ID).Str("title", n.Title).Msg("Notification shown")
	return n, nil
}

// NotificationClick closes the notification and returns the URL to open.
// A click on the notification body (empty action) opens it like the open
// action; any other action only closes and returns "".
func (c *Channel) NotificationClick(ctx context.Context, id, action string) (string, error) {
	n, ok := c.notifier.Dismiss(ctx, id)
	if !ok {
		return "", ErrNotificationNotFound
	}
	if action != "" && action != ActionOpen {
		return "", nil
	}
	return n.Data, nil
}

// Inbox is an in-memory Notifier holding the newest notifications.
type Inbox struct {
	mu    sync.Mutex
	items []*Notification
	size  int
}

// NewInbox creates an inbox keeping at most size notifications.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{size: size}
}

// Show adds n, evicting the oldest notification when full.
func (b *Inbox) Show(_ context.Context, n *Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append([]*Notification{n}, b.items...)
	if len(b.items) > b.size {
		b.items = b.items[:b.size]
	}
	return nil
}

// Dismiss removes and returns the notification with id.
func (b *Inbox) Dismiss(_ context.Context, id string) (*Notification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.items {
		if n.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return n, true
		}
	}
	return nil, false
}

// List returns the open notifications, newest first.
func (b *Inbox) List() []*Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Notification, len(b.items))
	copy(out, b.items)
	return out
}
