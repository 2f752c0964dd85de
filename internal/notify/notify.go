// Package notify is the public read/fan-out surface over stored
// notifications. The durable write path (recipient computation, row
// insertion) lives in internal/store's transaction machinery so it can
// commit atomically with the event that triggered it; this package adds
// the read API and a best-effort live-push side channel, grounded on the
// teacher's per-subject NATS publish convention (workflow/subjects.go).
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/store"
)

// SubjectForUser is the core-NATS subject a connected client subscribes to
// for live notification pushes.
func SubjectForUser(userID int64) string {
	return fmt.Sprintf("oa.notify.%d", userID)
}

// Notifier exposes notification read access and live fan-out.
type Notifier struct {
	store *store.Store
}

// New builds a Notifier over the given store.
func New(s *store.Store) *Notifier {
	return &Notifier{store: s}
}

// List returns a user's notifications, most recent first.
func (n *Notifier) List(ctx context.Context, userID int64) ([]*domain.Notification, error) {
	return n.store.ListNotifications(ctx, userID)
}

// MarkRead marks one notification read, reporting whether it was found.
func (n *Notifier) MarkRead(ctx context.Context, userID int64, notificationID string) (bool, error) {
	return n.store.MarkNotificationRead(ctx, userID, notificationID)
}

// livePush is the wire shape published to a user's notify subject. It is
// deliberately a thin projection of domain.Notification — clients that
// want the full row call List.
type livePush struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	EventType string `json:"event_type"`
	Message   string `json:"message,omitempty"`
}

// Push publishes a best-effort live update for a just-stored notification.
// A publish error is returned to the caller but is not fatal: the
// notification is already durable in the store by the time Push runs.
func (n *Notifier) Push(ctx context.Context, notification *domain.Notification) error {
	data, err := json.Marshal(livePush{
		ID:        notification.ID,
		RequestID: notification.RequestID,
		EventType: notification.EventType,
		Message:   notification.Message,
	})
	if err != nil {
		return err
	}
	return n.store.Publish(ctx, SubjectForUser(notification.UserID), data)
}

// PushPending publishes a live update for each user's most recent stored
// notification; older notifications are not pushed. Callers invoke this
// after a WithTx commit with the recipient ids it reported; push errors are
// discarded, and a failed push for one recipient does not block the others.
func (n *Notifier) PushPending(ctx context.Context, userIDs []int64) {
	for _, uid := range userIDs {
		items, err := n.store.ListNotifications(ctx, uid)
		if err != nil || len(items) == 0 {
			continue
		}
		_ = n.Push(ctx, items[0])
	}
}
