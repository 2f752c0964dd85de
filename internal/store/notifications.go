package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/errs"
)

// userNotifications is the per-user read-model bucket entry: an
// append-only ordered list, mirroring the teacher's
// load-append-Put shape for Task.StatusChange.
type userNotifications struct {
	Items []*domain.Notification `json:"items"`
}

func notifKey(userID int64) string { return fmt.Sprintf("u%d", userID) }

// appendNotification persists one notification row for a single
// recipient, serialized behind a per-user lock so concurrent fan-outs to
// the same watcher from different requests don't clobber each other.
func (s *Store) appendNotification(ctx context.Context, n pendingNotification) error {
	lock := s.locks.get(notifKey(n.userID))
	lock.Lock()
	defer lock.Unlock()

	list, err := s.loadUserNotifications(ctx, n.userID)
	if err != nil {
		return err
	}

	list.Items = append(list.Items, &domain.Notification{
		ID:          uuid.NewString(),
		UserID:      n.userID,
		RequestID:   n.requestID,
		EventType:   n.eventType,
		ActorUserID: n.actor,
		Message:     n.message,
		CreatedAt:   time.Now(),
	})

	data, err := json.Marshal(list)
	if err != nil {
		return errs.Storage("notification_encode_failed", err)
	}
	if _, err := s.notifications.Put(ctx, notifKey(n.userID), data); err != nil {
		return errs.Storage("notification_store_failed", err)
	}
	return nil
}

func (s *Store) loadUserNotifications(ctx context.Context, userID int64) (*userNotifications, error) {
	entry, err := s.notifications.Get(ctx, notifKey(userID))
	if err != nil {
		if isNotFound(err) {
			return &userNotifications{}, nil
		}
		return nil, errs.Storage("notification_load_failed", err)
	}
	var list userNotifications
	if err := json.Unmarshal(entry.Value(), &list); err != nil {
		return nil, errs.Storage("notification_decode_failed", err)
	}
	return &list, nil
}

// ListNotifications returns a user's notifications, most recent first.
func (s *Store) ListNotifications(ctx context.Context, userID int64) ([]*domain.Notification, error) {
	list, err := s.loadUserNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Notification, len(list.Items))
	for i, n := range list.Items {
		out[len(list.Items)-1-i] = n
	}
	return out, nil
}

// MarkNotificationRead marks a single notification read for its owner.
func (s *Store) MarkNotificationRead(ctx context.Context, userID int64, notificationID string) (bool, error) {
	lock := s.locks.get(notifKey(userID))
	lock.Lock()
	defer lock.Unlock()

	list, err := s.loadUserNotifications(ctx, userID)
	if err != nil {
		return false, err
	}
	found := false
	for _, n := range list.Items {
		if n.ID == notificationID {
			found = true
			if n.ReadAt == nil {
				now := time.Now()
				n.ReadAt = &now
			}
			break
		}
	}
	if !found {
		return false, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return false, errs.Storage("notification_encode_failed", err)
	}
	if _, err := s.notifications.Put(ctx, notifKey(userID), data); err != nil {
		return false, errs.Storage("notification_store_failed", err)
	}
	return true, nil
}
