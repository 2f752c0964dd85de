package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/errs"
)

func userKey(id int64) string { return fmt.Sprintf("%d", id) }

// PutUser creates or replaces a user row.
func (s *Store) PutUser(ctx context.Context, u *domain.User) error {
	lock := s.locks.get("user:" + userKey(u.ID))
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(u)
	if err != nil {
		return errs.Storage("user_encode_failed", err)
	}
	if _, err := s.users.Put(ctx, userKey(u.ID), data); err != nil {
		return errs.Storage("user_store_failed", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	entry, err := s.users.Get(ctx, userKey(id))
	if err != nil {
		if isNotFound(err) {
			return nil, errs.NotFound(errs.CodeNotFound)
		}
		return nil, errs.Storage("user_load_failed", err)
	}
	var u domain.User
	if err := json.Unmarshal(entry.Value(), &u); err != nil {
		return nil, errs.Storage("user_decode_failed", err)
	}
	return &u, nil
}

// ListUsers returns every known user.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	keys, err := s.users.Keys(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errs.Storage("user_list_failed", err)
	}
	out := make([]*domain.User, 0, len(keys))
	for _, k := range keys {
		entry, err := s.users.Get(ctx, k)
		if err != nil {
			continue
		}
		var u domain.User
		if err := json.Unmarshal(entry.Value(), &u); err != nil {
			continue
		}
		out = append(out, &u)
	}
	return out, nil
}
