// Package materializer turns a resolved workflow step into one or more
// Task rows on a request's transaction. Grounded on original_source's
// create_tasks_for_step: singleton steps (manager/role/user) materialize
// exactly one task, while users_all/users_any steps fan out one task per
// resolved user id, falling back to a single admin-role task when the
// expansion is empty.
package materializer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/oaengine/internal/assignee"
	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/errs"
	"github.com/c360studio/oaengine/internal/store"
)

// CreateStep materializes every task for step against the request held
// open in tx, returning the step_key created (for the caller's
// task_created event message).
func CreateStep(ctx context.Context, tx *store.Tx, creator assignee.Creator, step *domain.WorkflowVariantStep) (string, error) {
	switch step.AssigneeKind {
	case domain.AssigneeUsersAll, domain.AssigneeUsersAny:
		return createGroupStep(ctx, tx, creator, step)
	default:
		return createSingletonStep(tx, creator, step)
	}
}

func createSingletonStep(tx *store.Tx, creator assignee.Creator, step *domain.WorkflowVariantStep) (string, error) {
	target := assignee.Resolve(creator, step.AssigneeKind, step.AssigneeValue)
	tx.AddTask(newTask(step, target))
	return step.StepKey, nil
}

func createGroupStep(ctx context.Context, tx *store.Tx, creator assignee.Creator, step *domain.WorkflowVariantStep) (string, error) {
	var allIDs []int64
	if isEveryoneLiteral(step.AssigneeValue) {
		users, err := tx.Store().ListUsers(ctx)
		if err != nil {
			return "", errs.Storage("list_users_failed", err)
		}
		for _, u := range users {
			allIDs = append(allIDs, u.ID)
		}
	}

	userIDs := assignee.ResolveGroup(creator, step.AssigneeValue, allIDs)
	if len(userIDs) == 0 {
		tx.AddTask(newTask(step, assignee.Target{Role: "admin"}))
		return step.StepKey, nil
	}

	for _, uid := range userIDs {
		id := uid
		tx.AddTask(newTask(step, assignee.Target{UserID: &id}))
	}
	return step.StepKey, nil
}

func isEveryoneLiteral(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "all", "*", "everyone":
		return true
	}
	return false
}

func newTask(step *domain.WorkflowVariantStep, target assignee.Target) *domain.Task {
	order := step.StepOrder
	return &domain.Task{
		ID:             uuid.NewString(),
		StepOrder:      &order,
		StepKey:        step.StepKey,
		AssigneeUserID: target.UserID,
		AssigneeRole:   target.Role,
		Status:         domain.TaskPending,
		CreatedAt:      time.Now(),
	}
}
