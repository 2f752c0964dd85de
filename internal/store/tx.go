package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/errs"
)

// requestAggregate is the single JSON blob persisted per request: the
// request row plus every child row that is owned by it.
type requestAggregate struct {
	Request     *domain.Request          `json:"request"`
	Tasks       []*domain.Task           `json:"tasks"`
	Events      []*domain.RequestEvent   `json:"events"`
	Watchers    []*domain.RequestWatcher `json:"watchers"`
	NextEventID int64                    `json:"next_event_id"`
}

// Tx is the mutable view of one request's aggregate handed to a
// WithTx callback. It is not safe for use outside that callback.
type Tx struct {
	ctx   context.Context
	store *Store
	agg   *requestAggregate

	notifyDrafts []pendingNotification
}

type pendingNotification struct {
	userID    int64
	eventType string
	actor     *int64
	requestID string
	message   string
}

// Request returns the current request row, or nil if this aggregate has
// not been created yet (only valid inside the Start/Create flow).
func (tx *Tx) Request() *domain.Request { return tx.agg.Request }

// SetRequest installs/replaces the request row.
func (tx *Tx) SetRequest(r *domain.Request) { tx.agg.Request = r }

// Tasks returns all tasks on the request, in creation order.
func (tx *Tx) Tasks() []*domain.Task { return tx.agg.Tasks }

// TasksForStep returns the tasks sharing the given step_order — the
// "parallel group" read the engine must make from scratch on every
// decision (see Advance's design note on re-querying the group).
func (tx *Tx) TasksForStep(stepOrder int) []*domain.Task {
	var out []*domain.Task
	for _, t := range tx.agg.Tasks {
		if t.StepOrder != nil && *t.StepOrder == stepOrder {
			out = append(out, t)
		}
	}
	return out
}

// TaskByID finds a task by id, or nil.
func (tx *Tx) TaskByID(id string) *domain.Task {
	for _, t := range tx.agg.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AddTask appends a new task to the aggregate.
func (tx *Tx) AddTask(t *domain.Task) { tx.agg.Tasks = append(tx.agg.Tasks, t) }

// AppendEvent appends an audit event with a monotonically increasing id.
func (tx *Tx) AppendEvent(eventType string, actor *int64, message string) *domain.RequestEvent {
	tx.agg.NextEventID++
	ev := &domain.RequestEvent{
		ID:          tx.agg.NextEventID,
		RequestID:   tx.agg.Request.ID,
		EventType:   eventType,
		ActorUserID: actor,
		Message:     message,
		CreatedAt:   time.Now(),
	}
	tx.agg.Events = append(tx.agg.Events, ev)

	if domain.EventTriggersNotification(eventType) {
		tx.queueNotifications(eventType, actor, message)
	}
	return ev
}

// Events returns the full audit trail, in append order (monotonic id order).
func (tx *Tx) Events() []*domain.RequestEvent { return tx.agg.Events }

// Watchers returns the request's registered watchers.
func (tx *Tx) Watchers() []*domain.RequestWatcher { return tx.agg.Watchers }

// AddWatcher registers a watcher, de-duplicating on (user_id, kind).
func (tx *Tx) AddWatcher(w domain.RequestWatcher) {
	for _, existing := range tx.agg.Watchers {
		if existing.UserID == w.UserID && existing.Kind == w.Kind {
			return
		}
	}
	tx.agg.Watchers = append(tx.agg.Watchers, &w)
}

// queueNotifications computes the Notifier's recipient set (§4.8: watchers
// plus owner, minus the actor, deduplicated, ascending user id) and queues
// one draft notification per recipient. Drafts are flushed to the
// notifications store when the surrounding WithTx commits.
func (tx *Tx) queueNotifications(eventType string, actor *int64, message string) {
	recipients := map[int64]bool{}
	for _, w := range tx.agg.Watchers {
		recipients[w.UserID] = true
	}
	if tx.agg.Request != nil {
		recipients[tx.agg.Request.UserID] = true
	}
	if actor != nil {
		delete(recipients, *actor)
	}

	ids := make([]int64, 0, len(recipients))
	for id := range recipients {
		ids = append(ids, id)
	}
	sortInt64s(ids)

	for _, uid := range ids {
		tx.notifyDrafts = append(tx.notifyDrafts, pendingNotification{
			userID:    uid,
			eventType: eventType,
			actor:     actor,
			requestID: tx.agg.Request.ID,
			message:   message,
		})
	}
}

func sortInt64s(ids []int64) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// NewTestTx builds a Tx over an in-memory aggregate seeded with req, with
// no backing store. Exported for other packages' tests that exercise
// engine/materializer/actions logic against the Tx surface directly,
// without standing up a JetStream connection. Use WithStore if the code
// under test also needs Tx.Store() (e.g. a users_all/users_any "everyone"
// expansion, which looks up the full user list).
func NewTestTx(req *domain.Request) *Tx {
	return &Tx{agg: &requestAggregate{Request: req}}
}

// WithStore attaches s to tx, for tests whose code path reaches Tx.Store().
func (tx *Tx) WithStore(s *Store) *Tx {
	tx.store = s
	return tx
}

// Catalog/users/delegations are read through the store directly — they
// are administrative data with their own concurrency story, not part of
// this request's aggregate.

func (tx *Tx) Store() *Store { return tx.store }

// WithTx loads the aggregate for requestID (or starts an empty one, for a
// not-yet-created request), serializes it against every other operation
// on the same request, calls fn, and persists the result iff fn returns
// nil. Queued notifications are flushed after the aggregate commits.
func (s *Store) WithTx(ctx context.Context, requestID string, fn func(*Tx) error) error {
	lock := s.locks.get("req:" + requestID)
	lock.Lock()
	defer lock.Unlock()

	agg, err := s.loadAggregate(ctx, requestID)
	if err != nil {
		return err
	}

	tx := &Tx{ctx: ctx, store: s, agg: agg}
	if err := fn(tx); err != nil {
		return err
	}

	if err := s.saveAggregate(ctx, requestID, tx.agg); err != nil {
		return err
	}

	for _, t := range tx.agg.Tasks {
		if _, err := s.taskIndex.Put(ctx, t.ID, []byte(requestID)); err != nil {
			return errs.Storage("task_index_store_failed", err)
		}
	}

	for _, n := range tx.notifyDrafts {
		if err := s.appendNotification(ctx, n); err != nil {
			return errs.Storage("notification_store_failed", err)
		}
	}
	return nil
}

func (s *Store) loadAggregate(ctx context.Context, requestID string) (*requestAggregate, error) {
	entry, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if isNotFound(err) {
			return &requestAggregate{}, nil
		}
		return nil, errs.Storage("request_load_failed", err)
	}
	var agg requestAggregate
	if err := json.Unmarshal(entry.Value(), &agg); err != nil {
		return nil, errs.Storage("request_decode_failed", err)
	}
	return &agg, nil
}

func (s *Store) saveAggregate(ctx context.Context, requestID string, agg *requestAggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return errs.Storage("request_encode_failed", err)
	}
	if _, err := s.requests.Put(ctx, requestID, data); err != nil {
		return errs.Storage("request_store_failed", err)
	}
	return nil
}

// ResolveTaskRequestID looks up the request a task id belongs to, via the
// task index maintained alongside every WithTx commit. Boundary handlers
// use this to find the aggregate lock to take before mutating a task by id
// alone.
func (s *Store) ResolveTaskRequestID(ctx context.Context, taskID string) (string, error) {
	entry, err := s.taskIndex.Get(ctx, taskID)
	if err != nil {
		if isNotFound(err) {
			return "", errs.NotFound(errs.CodeNotFound)
		}
		return "", errs.Storage("task_index_load_failed", err)
	}
	return string(entry.Value()), nil
}

// GetRequest is a read-only convenience accessor outside of a WithTx
// callback (e.g. for a GET endpoint on the external boundary).
func (s *Store) GetRequest(ctx context.Context, requestID string) (*domain.Request, []*domain.Task, []*domain.RequestEvent, error) {
	agg, err := s.loadAggregate(ctx, requestID)
	if err != nil {
		return nil, nil, nil, err
	}
	if agg.Request == nil {
		return nil, nil, nil, errs.NotFound(errs.CodeNotFound)
	}
	return agg.Request, agg.Tasks, agg.Events, nil
}

// DeleteRequest removes a request and all of its owned children.
func (s *Store) DeleteRequest(ctx context.Context, requestID string) error {
	lock := s.locks.get("req:" + requestID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.requests.Delete(ctx, requestID); err != nil && !isNotFound(err) {
		return errs.Storage("request_delete_failed", err)
	}
	return nil
}
