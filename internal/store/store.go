// Package store provides transactional persistence for the approval
// workflow engine's entities, backed by NATS JetStream key/value buckets
// (one bucket per entity collection, grounded on the teacher's
// storage.Store). Every mutating engine operation runs through
// Store.WithTx, which serializes access to one request's aggregate
// (request + its tasks + its events + its watchers) behind a per-request
// lock and persists it as a single KV entry, so the operation's effects
// become visible all at once or not at all.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names for each entity collection.
const (
	BucketRequests      = "OA_REQUESTS"
	BucketVariants       = "OA_WORKFLOW_VARIANTS"
	BucketSteps          = "OA_WORKFLOW_STEPS"
	BucketUsers          = "OA_USERS"
	BucketDelegations    = "OA_DELEGATIONS"
	BucketNotifications  = "OA_NOTIFICATIONS"
	BucketTaskIndex      = "OA_TASK_INDEX"
	BucketRoles          = "OA_ROLES"
)

// Store is the engine's persistence layer.
type Store struct {
	js            jetstream.JetStream
	requests      jetstream.KeyValue
	variants      jetstream.KeyValue
	steps         jetstream.KeyValue
	users         jetstream.KeyValue
	delegations   jetstream.KeyValue
	notifications jetstream.KeyValue
	taskIndex     jetstream.KeyValue
	roles         jetstream.KeyValue

	locks *lockTable
}

// New creates a Store, creating any missing KV buckets.
func New(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	s := &Store{js: js, locks: newLockTable()}

	var err error
	if s.requests, err = getOrCreateBucket(ctx, js, BucketRequests); err != nil {
		return nil, fmt.Errorf("requests bucket: %w", err)
	}
	if s.variants, err = getOrCreateBucket(ctx, js, BucketVariants); err != nil {
		return nil, fmt.Errorf("variants bucket: %w", err)
	}
	if s.steps, err = getOrCreateBucket(ctx, js, BucketSteps); err != nil {
		return nil, fmt.Errorf("steps bucket: %w", err)
	}
	if s.users, err = getOrCreateBucket(ctx, js, BucketUsers); err != nil {
		return nil, fmt.Errorf("users bucket: %w", err)
	}
	if s.delegations, err = getOrCreateBucket(ctx, js, BucketDelegations); err != nil {
		return nil, fmt.Errorf("delegations bucket: %w", err)
	}
	if s.notifications, err = getOrCreateBucket(ctx, js, BucketNotifications); err != nil {
		return nil, fmt.Errorf("notifications bucket: %w", err)
	}
	if s.taskIndex, err = getOrCreateBucket(ctx, js, BucketTaskIndex); err != nil {
		return nil, fmt.Errorf("task index bucket: %w", err)
	}
	if s.roles, err = getOrCreateBucket(ctx, js, BucketRoles); err != nil {
		return nil, fmt.Errorf("roles bucket: %w", err)
	}

	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("OA engine %s storage", strings.ToLower(name)),
		History:     5,
	})
}

// Publish emits a core NATS message on subject, for live notification
// fan-out (see internal/notify). Best-effort: callers should treat a
// publish failure as non-fatal, since the notification row is already
// durably stored by the time this is called.
func (s *Store) Publish(ctx context.Context, subject string, data []byte) error {
	return s.js.Conn().Publish(subject, data)
}

func isNotFound(err error) bool {
	return err != nil && (err == jetstream.ErrKeyNotFound || strings.Contains(err.Error(), "key not found"))
}
