// Package engine drives the request state machine: selecting, skipping,
// and materializing workflow steps, and deciding when a request terminates.
// Grounded on original_source's workflow_engine.py (Start) and the
// decide_task half of task_actions.py (Advance).
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/oaengine/internal/assignee"
	"github.com/c360studio/oaengine/internal/catalog"
	"github.com/c360studio/oaengine/internal/condition"
	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/errs"
	"github.com/c360studio/oaengine/internal/materializer"
	"github.com/c360studio/oaengine/internal/metrics"
	"github.com/c360studio/oaengine/internal/store"
)

// Engine drives request lifecycles against a catalog and a store.
type Engine struct {
	catalog *catalog.Catalog
	metrics *metrics.Metrics
}

// New builds an Engine backed by the given catalog. m may be nil, in
// which case no metrics are recorded.
func New(c *catalog.Catalog, m *metrics.Metrics) *Engine {
	return &Engine{catalog: c, metrics: m}
}

func (e *Engine) recordMaterialized(kind domain.AssigneeKind) {
	if e.metrics == nil {
		return
	}
	e.metrics.TasksMaterialized.WithLabelValues(string(kind)).Inc()
}

func (e *Engine) recordTerminated(status domain.RequestStatus) {
	if e.metrics == nil {
		return
	}
	e.metrics.RequestsTerminated.WithLabelValues(string(status)).Inc()
}

// Start materializes the first step of request_id's workflow and appends
// the opening task_created event. The caller is expected to have already
// called tx.SetRequest with a pending Request row before calling Start.
func (e *Engine) Start(ctx context.Context, tx *store.Tx, creator assignee.Creator, requestType, workflowKey string) error {
	req := tx.Request()
	if req == nil {
		return errs.Integrity("missing_request", "Start called without a request row installed")
	}

	steps, err := e.catalog.ResolveSteps(ctx, workflowKey, requestType)
	if err != nil {
		return err
	}

	if len(steps) == 0 {
		order := 1
		tx.AddTask(&domain.Task{
			ID:           uuid.NewString(),
			StepOrder:    &order,
			StepKey:      "admin",
			AssigneeRole: "admin",
			Status:       domain.TaskPending,
			CreatedAt:    time.Now(),
		})
		tx.AppendEvent(domain.EventTaskCreated, nil, "step=admin")
		e.recordMaterialized(domain.AssigneeRole)
		return nil
	}

	first := condition.FindNextStep(steps, nil, req.Payload, creator.Dept)
	if first == nil {
		first = steps[0]
	}

	stepKey, err := materializer.CreateStep(ctx, tx, creator, first)
	if err != nil {
		return err
	}
	tx.AppendEvent(domain.EventTaskCreated, nil, "step="+stepKey)
	e.recordMaterialized(first.AssigneeKind)
	return nil
}

// Advance is invoked after task T has just been decided (approved or
// rejected). It resolves the current step's parallel-group semantics,
// decides whether the step is complete, and either selects+materializes
// the next step or terminates the request.
func (e *Engine) Advance(ctx context.Context, tx *store.Tx, creator assignee.Creator, decidedTask *domain.Task, actor int64) error {
	if e.metrics != nil {
		start := time.Now()
		defer func() { e.metrics.AdvanceLatency.Observe(time.Since(start).Seconds()) }()
	}

	req := tx.Request()
	if req == nil {
		return errs.Integrity("missing_request", "Advance called without a request row installed")
	}

	steps, err := e.catalog.ResolveSteps(ctx, req.WorkflowKey, req.RequestType)
	if err != nil {
		return err
	}

	currentOrder := resolveCurrentOrder(decidedTask, steps)

	var currentStep *domain.WorkflowVariantStep
	if currentOrder != nil {
		for _, s := range steps {
			if s.StepOrder == *currentOrder {
				currentStep = s
				break
			}
		}
	}

	isUsersAny := currentStep != nil && currentStep.AssigneeKind == domain.AssigneeUsersAny
	isUsersAll := currentStep != nil && currentStep.AssigneeKind == domain.AssigneeUsersAll

	if decidedTask.Status == domain.TaskRejected {
		if isUsersAny && currentOrder != nil {
			group := tx.TasksForStep(*currentOrder)
			if anyPendingOrApproved(group) {
				return nil
			}
		}
		req.Status = domain.RequestRejected
		req.DecidedBy = &actor
		now := time.Now()
		req.DecidedAt = &now
		tx.AppendEvent(domain.EventRequestRejected, &actor, decidedTask.Comment)
		e.recordTerminated(domain.RequestRejected)
		return nil
	}

	if isUsersAll && currentOrder != nil {
		group := tx.TasksForStep(*currentOrder)
		if len(group) > 0 && !allApproved(group) {
			return nil
		}
	}

	if isUsersAny && currentOrder != nil {
		cancelPendingSiblings(tx.TasksForStep(*currentOrder), decidedTask.ID, actor)
	}

	if currentOrder != nil {
		group := tx.TasksForStep(*currentOrder)
		if anyPending(group) {
			return nil
		}
	}

	next := condition.FindNextStep(steps, currentOrder, req.Payload, creator.Dept)
	if next != nil {
		stepKey, err := materializer.CreateStep(ctx, tx, creator, next)
		if err != nil {
			return err
		}
		tx.AppendEvent(domain.EventTaskCreated, nil, "step="+stepKey)
		e.recordMaterialized(next.AssigneeKind)
		req.Status = domain.RequestPending
		req.DecidedBy = nil
		return nil
	}

	req.Status = domain.RequestApproved
	req.DecidedBy = &actor
	now := time.Now()
	req.DecidedAt = &now
	tx.AppendEvent(domain.EventRequestApproved, &actor, decidedTask.Comment)
	e.recordTerminated(domain.RequestApproved)
	return nil
}

func resolveCurrentOrder(task *domain.Task, steps []*domain.WorkflowVariantStep) *int {
	if task.StepOrder != nil {
		order := *task.StepOrder
		return &order
	}
	for _, s := range steps {
		if s.StepKey == task.StepKey {
			order := s.StepOrder
			return &order
		}
	}
	return nil
}

func anyPendingOrApproved(group []*domain.Task) bool {
	for _, t := range group {
		if t.Status == domain.TaskPending || t.Status == domain.TaskApproved {
			return true
		}
	}
	return false
}

func allApproved(group []*domain.Task) bool {
	for _, t := range group {
		if t.Status != domain.TaskApproved {
			return false
		}
	}
	return true
}

func anyPending(group []*domain.Task) bool {
	for _, t := range group {
		if t.Status == domain.TaskPending {
			return true
		}
	}
	return false
}

func cancelPendingSiblings(group []*domain.Task, exceptTaskID string, decidedBy int64) {
	now := time.Now()
	for _, t := range group {
		if t.ID == exceptTaskID || t.Status != domain.TaskPending {
			continue
		}
		t.Status = domain.TaskCanceled
		t.DecidedBy = &decidedBy
		t.DecidedAt = &now
		t.Comment = "canceled"
	}
}
