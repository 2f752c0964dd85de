// Package actions implements the task-level and request-level verbs an
// actor invokes against a pending task or request: approve, reject,
// return, transfer, addsign, resubmit, withdraw, void. Grounded on
// original_source's task_actions.py.
package actions

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/oaengine/internal/assignee"
	"github.com/c360studio/oaengine/internal/catalog"
	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/engine"
	"github.com/c360studio/oaengine/internal/errs"
	"github.com/c360studio/oaengine/internal/store"
)

// Actor is the authenticated caller invoking a verb.
type Actor struct {
	ID        int64
	Role      string
	Dept      string
	ManagerID *int64
}

func (a Actor) asCreator() assignee.Creator {
	return assignee.Creator{ID: a.ID, ManagerID: a.ManagerID, Dept: a.Dept}
}

// Actions wires together the store and engine for the boundary layer.
type Actions struct {
	store   *store.Store
	catalog *catalog.Catalog
	engine  *engine.Engine
}

// New builds an Actions value.
func New(s *store.Store, c *catalog.Catalog, e *engine.Engine) *Actions {
	return &Actions{store: s, catalog: c, engine: e}
}

// CanAct reports whether actor may decide task, ignoring the admin-bypass
// rule that only applies to transfer.
func CanAct(ctx context.Context, s *store.Store, actor Actor, task *domain.Task) (bool, error) {
	if task.AssigneeUserID != nil && *task.AssigneeUserID == actor.ID {
		return true, nil
	}
	if task.AssigneeRole != "" && task.AssigneeRole == actor.Role {
		return true, nil
	}
	if task.AssigneeUserID == nil {
		return false, nil
	}
	return s.IsActiveDelegate(ctx, *task.AssigneeUserID, actor.ID)
}

// CreateRequest resolves the workflow variant, installs a new pending
// request, and starts its first step.
func (a *Actions) CreateRequest(ctx context.Context, actor Actor, requestType, requestedWorkflowKey, title, body string, payload *domain.Payload) (*domain.Request, error) {
	workflowKey, err := a.catalog.ResolveWorkflowKey(ctx, requestedWorkflowKey, requestType, actor.Dept)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	var result *domain.Request
	err = a.store.WithTx(ctx, id, func(tx *store.Tx) error {
		now := time.Now()
		req := &domain.Request{
			ID:          id,
			UserID:      actor.ID,
			RequestType: requestType,
			WorkflowKey: workflowKey,
			Title:       title,
			Body:        body,
			Payload:     payload,
			Status:      domain.RequestPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		tx.SetRequest(req)
		tx.AppendEvent(domain.EventCreated, &actor.ID, "")

		if err := a.engine.Start(ctx, tx, actor.asCreator(), requestType, workflowKey); err != nil {
			return err
		}
		result = tx.Request()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withTask resolves task's owning request, loads the
// aggregate, and enforces the common preamble: task must exist and be
// pending, request must exist. Callers check request status themselves
// since resubmit's precondition differs from the rest.
func (a *Actions) withTask(ctx context.Context, taskID string, fn func(tx *store.Tx, task *domain.Task) error) error {
	requestID, err := a.store.ResolveTaskRequestID(ctx, taskID)
	if err != nil {
		return err
	}
	return a.store.WithTx(ctx, requestID, func(tx *store.Tx) error {
		task := tx.TaskByID(taskID)
		if task == nil {
			return errs.NotFound(errs.CodeNotFound)
		}
		if task.Status != domain.TaskPending {
			return errs.Precondition(errs.CodeTaskAlreadyDecided, "task already decided")
		}
		if tx.Request() == nil {
			return errs.NotFound(errs.CodeNotFound)
		}
		return fn(tx, task)
	})
}

func requirePendingRequest(tx *store.Tx) error {
	if tx.Request().Status != domain.RequestPending {
		return errs.Precondition(errs.CodeRequestDecided, "request already decided")
	}
	return nil
}

// Approve decides task as approved and advances the workflow.
func (a *Actions) Approve(ctx context.Context, actor Actor, taskID, comment string) error {
	return a.decide(ctx, actor, taskID, domain.TaskApproved, comment)
}

// Reject decides task as rejected and advances (or terminates) the workflow.
func (a *Actions) Reject(ctx context.Context, actor Actor, taskID, comment string) error {
	return a.decide(ctx, actor, taskID, domain.TaskRejected, comment)
}

func (a *Actions) decide(ctx context.Context, actor Actor, taskID string, decision domain.TaskStatus, comment string) error {
	return a.withTask(ctx, taskID, func(tx *store.Tx, task *domain.Task) error {
		if err := requirePendingRequest(tx); err != nil {
			return err
		}
		ok, err := CanAct(ctx, a.store, actor, task)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Unauthorized(errs.CodeNotAuthorized)
		}

		now := time.Now()
		task.Status = decision
		task.DecidedBy = &actor.ID
		task.DecidedAt = &now
		task.Comment = comment
		tx.AppendEvent(domain.EventTaskDecided, &actor.ID, "task="+taskID+" step="+task.StepKey+" decision="+string(decision))

		req := tx.Request()
		creator := assignee.Creator{ID: req.UserID}
		if creatorUser, err := a.store.GetUser(ctx, req.UserID); err == nil && creatorUser != nil {
			creator.Dept = creatorUser.Dept
			creator.ManagerID = creatorUser.ManagerID
		}

		return a.engine.Advance(ctx, tx, creator, task, actor.ID)
	})
}

// Return rejects-with-changes: terminates task as returned, cancels every
// other pending task on the request, moves the request to
// changes_requested, and creates the synthetic resubmit task.
func (a *Actions) Return(ctx context.Context, actor Actor, taskID, comment string) error {
	return a.withTask(ctx, taskID, func(tx *store.Tx, task *domain.Task) error {
		if err := requirePendingRequest(tx); err != nil {
			return err
		}
		ok, err := CanAct(ctx, a.store, actor, task)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Unauthorized(errs.CodeNotAuthorized)
		}

		now := time.Now()
		task.Status = domain.TaskReturned
		task.DecidedBy = &actor.ID
		task.DecidedAt = &now
		task.Comment = comment
		tx.AppendEvent(domain.EventTaskReturned, &actor.ID, "task="+taskID+" step="+task.StepKey)

		req := tx.Request()
		cancelAllPending(tx, actor.ID)
		req.Status = domain.RequestChangesRequested
		tx.AppendEvent(domain.EventChangesRequested, &actor.ID, comment)

		createResubmitTask(tx, req.UserID)
		tx.AppendEvent(domain.EventTaskCreated, nil, "step=resubmit")
		return nil
	})
}

// Transfer reassigns a pending task to another user, clearing any role
// assignment. It does not decide the task. Admins bypass CanAct here.
func (a *Actions) Transfer(ctx context.Context, actor Actor, taskID string, assigneeUserID int64) error {
	return a.withTask(ctx, taskID, func(tx *store.Tx, task *domain.Task) error {
		if err := requirePendingRequest(tx); err != nil {
			return err
		}
		if actor.Role != "admin" {
			ok, err := CanAct(ctx, a.store, actor, task)
			if err != nil {
				return err
			}
			if !ok {
				return errs.Unauthorized(errs.CodeNotAuthorized)
			}
		}
		if u, err := a.store.GetUser(ctx, assigneeUserID); err != nil || u == nil {
			return errs.NotFound(errs.CodeInvalidUserID)
		}

		task.AssigneeUserID = &assigneeUserID
		task.AssigneeRole = ""
		tx.AppendEvent(domain.EventTaskTransferred, &actor.ID, "task="+taskID+" to_user_id="+strconv.FormatInt(assigneeUserID, 10))
		return nil
	})
}

// AddSign creates an additional pending task at the same step_order/step_key
// as task, assigned to another user, without closing task. This promotes a
// singleton step into a multi-assignee group for this request instance.
func (a *Actions) AddSign(ctx context.Context, actor Actor, taskID string, assigneeUserID int64) error {
	return a.withTask(ctx, taskID, func(tx *store.Tx, task *domain.Task) error {
		if err := requirePendingRequest(tx); err != nil {
			return err
		}
		ok, err := CanAct(ctx, a.store, actor, task)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Unauthorized(errs.CodeNotAuthorized)
		}
		if u, err := a.store.GetUser(ctx, assigneeUserID); err != nil || u == nil {
			return errs.NotFound(errs.CodeInvalidUserID)
		}

		var order *int
		if task.StepOrder != nil {
			o := *task.StepOrder
			order = &o
		}
		tx.AddTask(&domain.Task{
			ID:             uuid.NewString(),
			StepOrder:      order,
			StepKey:        task.StepKey,
			AssigneeUserID: &assigneeUserID,
			Status:         domain.TaskPending,
			CreatedAt:      time.Now(),
		})
		tx.AppendEvent(domain.EventTaskAddSigned, &actor.ID, "task="+taskID+" to_user_id="+strconv.FormatInt(assigneeUserID, 10))
		return nil
	})
}

// Resubmit re-opens a changes_requested request: cancels the pending
// resubmit task, overwrites title/body/payload, resets status to pending,
// and re-invokes Start.
func (a *Actions) Resubmit(ctx context.Context, actor Actor, requestID, title, body string, payload *domain.Payload) error {
	return a.store.WithTx(ctx, requestID, func(tx *store.Tx) error {
		req := tx.Request()
		if req == nil {
			return errs.NotFound(errs.CodeNotFound)
		}
		if req.UserID != actor.ID {
			return errs.Unauthorized(errs.CodeNotAuthorized)
		}
		if req.Status != domain.RequestChangesRequested {
			return errs.Precondition(errs.CodeNotEditable, "request is not awaiting resubmission")
		}

		cancelAllPending(tx, actor.ID)

		req.Title = title
		req.Body = body
		req.Payload = payload
		req.Status = domain.RequestPending
		req.DecidedBy = nil
		req.DecidedAt = nil
		tx.AppendEvent(domain.EventResubmitted, &actor.ID, "pending tasks canceled by owner on resubmit")

		workflowKey := req.WorkflowKey
		if workflowKey == "" {
			resolved, err := a.catalog.ResolveWorkflowKey(ctx, "", req.RequestType, actor.Dept)
			if err != nil {
				return err
			}
			workflowKey = resolved
			req.WorkflowKey = resolved
		}
		return a.engine.Start(ctx, tx, actor.asCreator(), req.RequestType, workflowKey)
	})
}

// Withdraw lets the owner cancel their own request while it is still
// pending or awaiting resubmission.
func (a *Actions) Withdraw(ctx context.Context, actor Actor, requestID string) error {
	return a.store.WithTx(ctx, requestID, func(tx *store.Tx) error {
		req := tx.Request()
		if req == nil {
			return errs.NotFound(errs.CodeNotFound)
		}
		if req.UserID != actor.ID {
			return errs.Unauthorized(errs.CodeNotAuthorized)
		}
		if req.Status != domain.RequestPending && req.Status != domain.RequestChangesRequested {
			return errs.Precondition(errs.CodeNotEditable, "request is not in a withdrawable state")
		}
		cancelAllPending(tx, actor.ID)
		req.Status = domain.RequestWithdrawn
		tx.AppendEvent(domain.EventWithdrawn, &actor.ID, "")
		return nil
	})
}

// Void is the admin-only equivalent of Withdraw.
func (a *Actions) Void(ctx context.Context, actor Actor, requestID string) error {
	if actor.Role != "admin" {
		return errs.Unauthorized(errs.CodeNotAuthorized)
	}
	return a.store.WithTx(ctx, requestID, func(tx *store.Tx) error {
		req := tx.Request()
		if req == nil {
			return errs.NotFound(errs.CodeNotFound)
		}
		if req.Status != domain.RequestPending && req.Status != domain.RequestChangesRequested {
			return errs.Precondition(errs.CodeNotEditable, "request is not in a voidable state")
		}
		cancelAllPending(tx, actor.ID)
		req.Status = domain.RequestVoided
		tx.AppendEvent(domain.EventVoided, &actor.ID, "")
		return nil
	})
}

// cancelAllPending marks every still-pending task on the request canceled,
// attributing the cancellation to decidedBy. Used by return/resubmit/
// withdraw/void. decidedBy marks who caused the cancellation, not who
// decided the underlying tasks — during resubmit this is the owner, even
// for tasks previously assigned to approvers.
func cancelAllPending(tx *store.Tx, decidedBy int64) {
	now := time.Now()
	for _, t := range tx.Tasks() {
		if t.Status != domain.TaskPending {
			continue
		}
		t.Status = domain.TaskCanceled
		t.DecidedBy = &decidedBy
		t.DecidedAt = &now
	}
}

func createResubmitTask(tx *store.Tx, ownerUserID int64) {
	order := 0
	tx.AddTask(&domain.Task{
		ID:             uuid.NewString(),
		StepOrder:      &order,
		StepKey:        "resubmit",
		AssigneeUserID: &ownerUserID,
		Status:         domain.TaskPending,
		CreatedAt:      time.Now(),
	})
}
