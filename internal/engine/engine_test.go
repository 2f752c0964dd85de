package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360studio/oaengine/internal/assignee"
	"github.com/c360studio/oaengine/internal/catalog"
	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/store"
	"github.com/c360studio/oaengine/internal/testutil"
)

func newTestEngine(t *testing.T) (*Engine, *catalog.Catalog, *store.Store) {
	t.Helper()
	st := testutil.NewStore(t)
	c := catalog.New(st)
	return New(c, nil), c, st
}

func amountPayload(amount float64) *domain.Payload {
	return &domain.Payload{Amount: &amount}
}

func seedLinearWorkflow(t *testing.T, ctx context.Context, st *store.Store, key string, threshold string) {
	t.Helper()
	require.NoError(t, st.PutVariant(ctx, &domain.WorkflowVariant{WorkflowKey: key, RequestType: key, Enabled: true}))
	require.NoError(t, st.ReplaceSteps(ctx, key, []*domain.WorkflowVariantStep{
		{WorkflowKey: key, StepOrder: 1, StepKey: "manager", AssigneeKind: domain.AssigneeRole, AssigneeValue: "manager"},
		{WorkflowKey: key, StepOrder: 2, StepKey: "gm", AssigneeKind: domain.AssigneeRole, AssigneeValue: "gm",
			ConditionKind: domain.ConditionMinAmount, ConditionValue: threshold},
		{WorkflowKey: key, StepOrder: 3, StepKey: "finance", AssigneeKind: domain.AssigneeRole, AssigneeValue: "finance"},
	}))
}

func newPendingRequest(id string) *domain.Request {
	return &domain.Request{ID: id, RequestType: id, WorkflowKey: id, Status: domain.RequestPending}
}

func TestStart_MaterializesFirstStep(t *testing.T) {
	ctx := context.Background()
	eng, _, st := newTestEngine(t)
	seedLinearWorkflow(t, ctx, st, "expense", "5000")

	err := st.WithTx(ctx, "req-1", func(tx *store.Tx) error {
		tx.SetRequest(newPendingRequest("req-1"))
		return eng.Start(ctx, tx, assignee.Creator{ID: 1}, "expense", "expense")
	})
	require.NoError(t, err)

	req, tasks, events, err := st.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "manager", tasks[0].StepKey)
	require.Equal(t, domain.RequestPending, req.Status)
	require.NotEmpty(t, events)
}

func TestAdvance_ExpenseBelowThreshold_SkipsGMStep(t *testing.T) {
	ctx := context.Background()
	eng, _, st := newTestEngine(t)
	seedLinearWorkflow(t, ctx, st, "expense", "5000")

	req := newPendingRequest("req-2")
	req.WorkflowKey = "expense"
	req.RequestType = "expense"
	req.Payload = amountPayload(1000)

	require.NoError(t, st.WithTx(ctx, "req-2", func(tx *store.Tx) error {
		tx.SetRequest(req)
		return eng.Start(ctx, tx, assignee.Creator{ID: 1}, "expense", "expense")
	}))

	_, tasks, _, err := st.GetRequest(ctx, "req-2")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	managerTask := tasks[0]

	require.NoError(t, st.WithTx(ctx, "req-2", func(tx *store.Tx) error {
		task := tx.TaskByID(managerTask.ID)
		task.Status = domain.TaskApproved
		actor := int64(9)
		task.DecidedBy = &actor
		return eng.Advance(ctx, tx, assignee.Creator{ID: 1}, task, 9)
	}))

	gotReq, tasks, _, err := st.GetRequest(ctx, "req-2")
	require.NoError(t, err)
	require.Len(t, tasks, 2, "the gm step is skipped; only manager+finance tasks exist")
	assertStepKeys(t, tasks, "manager", "finance")
	require.Equal(t, domain.RequestPending, gotReq.Status)
}

func TestAdvance_ExpenseAboveThreshold_IncludesGMStep(t *testing.T) {
	ctx := context.Background()
	eng, _, st := newTestEngine(t)
	seedLinearWorkflow(t, ctx, st, "expense", "5000")

	req := newPendingRequest("req-3")
	req.WorkflowKey = "expense"
	req.RequestType = "expense"
	req.Payload = amountPayload(6000)

	require.NoError(t, st.WithTx(ctx, "req-3", func(tx *store.Tx) error {
		tx.SetRequest(req)
		return eng.Start(ctx, tx, assignee.Creator{ID: 1}, "expense", "expense")
	}))
	_, tasks, _, err := st.GetRequest(ctx, "req-3")
	require.NoError(t, err)
	managerTask := tasks[0]

	require.NoError(t, st.WithTx(ctx, "req-3", func(tx *store.Tx) error {
		task := tx.TaskByID(managerTask.ID)
		task.Status = domain.TaskApproved
		return eng.Advance(ctx, tx, assignee.Creator{ID: 1}, task, 9)
	}))

	_, tasks, _, err = st.GetRequest(ctx, "req-3")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assertStepKeys(t, tasks, "manager", "gm")
}

func TestAdvance_RejectTerminatesRequest(t *testing.T) {
	ctx := context.Background()
	eng, _, st := newTestEngine(t)
	seedLinearWorkflow(t, ctx, st, "expense", "5000")

	req := newPendingRequest("req-4")
	req.Payload = amountPayload(100)
	require.NoError(t, st.WithTx(ctx, "req-4", func(tx *store.Tx) error {
		tx.SetRequest(req)
		return eng.Start(ctx, tx, assignee.Creator{ID: 1}, "expense", "expense")
	}))
	_, tasks, _, err := st.GetRequest(ctx, "req-4")
	require.NoError(t, err)
	managerTask := tasks[0]

	require.NoError(t, st.WithTx(ctx, "req-4", func(tx *store.Tx) error {
		task := tx.TaskByID(managerTask.ID)
		task.Status = domain.TaskRejected
		return eng.Advance(ctx, tx, assignee.Creator{ID: 1}, task, 9)
	}))

	gotReq, tasks, _, err := st.GetRequest(ctx, "req-4")
	require.NoError(t, err)
	require.Equal(t, domain.RequestRejected, gotReq.Status)
	require.Len(t, tasks, 1, "no further steps are materialized once rejected")
}

func TestAdvance_UsersAny_FirstApprovalCancelsSiblingsAndCompletesStep(t *testing.T) {
	ctx := context.Background()
	eng, _, st := newTestEngine(t)

	const key = "vote"
	require.NoError(t, st.PutVariant(ctx, &domain.WorkflowVariant{WorkflowKey: key, RequestType: key, Enabled: true}))
	require.NoError(t, st.ReplaceSteps(ctx, key, []*domain.WorkflowVariantStep{
		{WorkflowKey: key, StepOrder: 1, StepKey: "vote", AssigneeKind: domain.AssigneeUsersAny, AssigneeValue: "10,11,12"},
	}))

	req := newPendingRequest("req-5")
	req.WorkflowKey = key
	req.RequestType = key
	require.NoError(t, st.WithTx(ctx, "req-5", func(tx *store.Tx) error {
		tx.SetRequest(req)
		return eng.Start(ctx, tx, assignee.Creator{ID: 1}, key, key)
	}))

	_, tasks, _, err := st.GetRequest(ctx, "req-5")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	winner := tasks[0]

	require.NoError(t, st.WithTx(ctx, "req-5", func(tx *store.Tx) error {
		task := tx.TaskByID(winner.ID)
		task.Status = domain.TaskApproved
		return eng.Advance(ctx, tx, assignee.Creator{ID: 1}, task, 10)
	}))

	gotReq, tasks, _, err := st.GetRequest(ctx, "req-5")
	require.NoError(t, err)
	require.Equal(t, domain.RequestApproved, gotReq.Status, "users_any completes and the request terminates once one sibling approves")
	var approved, canceled int
	for _, task := range tasks {
		switch task.Status {
		case domain.TaskApproved:
			approved++
		case domain.TaskCanceled:
			canceled++
		}
	}
	require.Equal(t, 1, approved)
	require.Equal(t, 2, canceled)
}

func TestAdvance_UsersAll_WaitsForEveryApproval(t *testing.T) {
	ctx := context.Background()
	eng, _, st := newTestEngine(t)

	const key = "countersign"
	require.NoError(t, st.PutVariant(ctx, &domain.WorkflowVariant{WorkflowKey: key, RequestType: key, Enabled: true}))
	require.NoError(t, st.ReplaceSteps(ctx, key, []*domain.WorkflowVariantStep{
		{WorkflowKey: key, StepOrder: 1, StepKey: "sign", AssigneeKind: domain.AssigneeUsersAll, AssigneeValue: "10,11"},
	}))

	req := newPendingRequest("req-6")
	req.WorkflowKey = key
	req.RequestType = key
	require.NoError(t, st.WithTx(ctx, "req-6", func(tx *store.Tx) error {
		tx.SetRequest(req)
		return eng.Start(ctx, tx, assignee.Creator{ID: 1}, key, key)
	}))
	_, tasks, _, err := st.GetRequest(ctx, "req-6")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.NoError(t, st.WithTx(ctx, "req-6", func(tx *store.Tx) error {
		task := tx.TaskByID(tasks[0].ID)
		task.Status = domain.TaskApproved
		return eng.Advance(ctx, tx, assignee.Creator{ID: 1}, task, 10)
	}))
	gotReq, _, _, err := st.GetRequest(ctx, "req-6")
	require.NoError(t, err)
	require.Equal(t, domain.RequestPending, gotReq.Status, "users_all is not complete until every sibling decides")

	require.NoError(t, st.WithTx(ctx, "req-6", func(tx *store.Tx) error {
		task := tx.TaskByID(tasks[1].ID)
		task.Status = domain.TaskApproved
		return eng.Advance(ctx, tx, assignee.Creator{ID: 1}, task, 11)
	}))
	gotReq, _, _, err = st.GetRequest(ctx, "req-6")
	require.NoError(t, err)
	require.Equal(t, domain.RequestApproved, gotReq.Status)
}

func assertStepKeys(t *testing.T, tasks []*domain.Task, want ...string) {
	t.Helper()
	var got []string
	for _, task := range tasks {
		got = append(got, task.StepKey)
	}
	require.ElementsMatch(t, want, got)
}
