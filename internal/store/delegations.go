package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/errs"
)

func delegationKey(delegatorID int64) string { return fmt.Sprintf("%d", delegatorID) }

// PutDelegation creates/replaces the (at most one) delegation row for a
// delegator.
func (s *Store) PutDelegation(ctx context.Context, d *domain.Delegation) error {
	lock := s.locks.get("deleg:" + delegationKey(d.DelegatorUserID))
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(d)
	if err != nil {
		return errs.Storage("delegation_encode_failed", err)
	}
	if _, err := s.delegations.Put(ctx, delegationKey(d.DelegatorUserID), data); err != nil {
		return errs.Storage("delegation_store_failed", err)
	}
	return nil
}

// GetDelegation returns the delegation row for a delegator, or nil if none.
func (s *Store) GetDelegation(ctx context.Context, delegatorID int64) (*domain.Delegation, error) {
	entry, err := s.delegations.Get(ctx, delegationKey(delegatorID))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errs.Storage("delegation_load_failed", err)
	}
	var d domain.Delegation
	if err := json.Unmarshal(entry.Value(), &d); err != nil {
		return nil, errs.Storage("delegation_decode_failed", err)
	}
	return &d, nil
}

// IsActiveDelegate reports whether delegateID may act on delegatorID's tasks.
func (s *Store) IsActiveDelegate(ctx context.Context, delegatorID, delegateID int64) (bool, error) {
	d, err := s.GetDelegation(ctx, delegatorID)
	if err != nil {
		return false, err
	}
	if d == nil || !d.Active {
		return false, nil
	}
	return d.DelegateUserID == delegateID, nil
}
