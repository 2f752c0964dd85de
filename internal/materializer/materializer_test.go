package materializer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/oaengine/internal/assignee"
	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/store"
	"github.com/c360studio/oaengine/internal/testutil"
)

func newRequestTx(requestID string) *store.Tx {
	return store.NewTestTx(&domain.Request{ID: requestID})
}

func TestCreateStep_Singleton(t *testing.T) {
	tx := newRequestTx("req-1")
	step := &domain.WorkflowVariantStep{
		StepOrder:     1,
		StepKey:       "manager",
		AssigneeKind:  domain.AssigneeRole,
		AssigneeValue: "finance",
	}

	key, err := CreateStep(context.Background(), tx, assignee.Creator{ID: 1}, step)
	require.NoError(t, err)
	assert.Equal(t, "manager", key)

	tasks := tx.TasksForStep(1)
	require.Len(t, tasks, 1)
	assert.Equal(t, "finance", tasks[0].AssigneeRole)
	assert.Equal(t, domain.TaskPending, tasks[0].Status)
}

func TestCreateStep_UsersAll_ExplicitList(t *testing.T) {
	tx := newRequestTx("req-2")
	step := &domain.WorkflowVariantStep{
		StepOrder:     1,
		StepKey:       "countersign",
		AssigneeKind:  domain.AssigneeUsersAll,
		AssigneeValue: "10,11,12",
	}

	_, err := CreateStep(context.Background(), tx, assignee.Creator{ID: 1}, step)
	require.NoError(t, err)

	tasks := tx.TasksForStep(1)
	require.Len(t, tasks, 3)
	var ids []int64
	for _, task := range tasks {
		require.NotNil(t, task.AssigneeUserID)
		ids = append(ids, *task.AssigneeUserID)
		assert.Equal(t, domain.TaskPending, task.Status)
	}
	assert.ElementsMatch(t, []int64{10, 11, 12}, ids)
}

func TestCreateStep_UsersAny_EmptyExpansionFallsBackToAdmin(t *testing.T) {
	tx := newRequestTx("req-3")
	step := &domain.WorkflowVariantStep{
		StepOrder:     1,
		StepKey:       "vote",
		AssigneeKind:  domain.AssigneeUsersAny,
		AssigneeValue: "",
	}

	_, err := CreateStep(context.Background(), tx, assignee.Creator{ID: 1}, step)
	require.NoError(t, err)

	tasks := tx.TasksForStep(1)
	require.Len(t, tasks, 1, "a step can never stall with zero materialized tasks")
	assert.Equal(t, "admin", tasks[0].AssigneeRole)
}

func TestCreateStep_UsersAny_EveryoneLiteralExcludesCreator(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, st.PutUser(ctx, &domain.User{ID: id, Username: "user"}))
	}

	tx := store.NewTestTx(&domain.Request{ID: "req-4"}).WithStore(st)

	step := &domain.WorkflowVariantStep{
		StepOrder:     1,
		StepKey:       "vote",
		AssigneeKind:  domain.AssigneeUsersAny,
		AssigneeValue: "everyone",
	}

	_, err := CreateStep(ctx, tx, assignee.Creator{ID: 2}, step)
	require.NoError(t, err)

	tasks := tx.TasksForStep(1)
	var ids []int64
	for _, task := range tasks {
		require.NotNil(t, task.AssigneeUserID)
		ids = append(ids, *task.AssigneeUserID)
	}
	assert.ElementsMatch(t, []int64{1, 3}, ids, "the creator is never assigned their own everyone-expanded step")
}
