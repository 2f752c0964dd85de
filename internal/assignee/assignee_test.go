package assignee

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/oaengine/internal/domain"
)

func TestResolve_Manager(t *testing.T) {
	managerID := int64(42)
	creator := Creator{ID: 1, ManagerID: &managerID}

	target := Resolve(creator, domain.AssigneeManager, "")
	if assert.NotNil(t, target.UserID) {
		assert.Equal(t, managerID, *target.UserID)
	}
	assert.Empty(t, target.Role)
}

func TestResolve_Manager_NoManagerFallsBackToAdmin(t *testing.T) {
	creator := Creator{ID: 1}
	target := Resolve(creator, domain.AssigneeManager, "")
	assert.Nil(t, target.UserID)
	assert.Equal(t, "admin", target.Role)
}

func TestResolve_Role(t *testing.T) {
	target := Resolve(Creator{}, domain.AssigneeRole, "finance")
	assert.Equal(t, "finance", target.Role)
	assert.Nil(t, target.UserID)
}

func TestResolve_Role_EmptyValueFallsBackToAdmin(t *testing.T) {
	target := Resolve(Creator{}, domain.AssigneeRole, "")
	assert.Equal(t, "admin", target.Role)
}

func TestResolve_User(t *testing.T) {
	target := Resolve(Creator{}, domain.AssigneeUser, "7")
	if assert.NotNil(t, target.UserID) {
		assert.Equal(t, int64(7), *target.UserID)
	}
}

func TestResolve_User_UnparseableFallsBackToAdmin(t *testing.T) {
	target := Resolve(Creator{}, domain.AssigneeUser, "not-a-number")
	assert.Equal(t, "admin", target.Role)
}

func TestResolveGroup_EveryoneLiterals(t *testing.T) {
	creator := Creator{ID: 2}
	all := []int64{1, 2, 3, 4}

	for _, literal := range []string{"all", "ALL", "*", "everyone", " Everyone "} {
		got := ResolveGroup(creator, literal, all)
		assert.ElementsMatch(t, []int64{1, 3, 4}, got, "literal %q should expand to every user but the creator", literal)
	}
}

func TestResolveGroup_ExplicitList(t *testing.T) {
	got := ResolveGroup(Creator{ID: 99}, "1,2;3", []int64{1, 2, 3, 4})
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestParseIDList_DedupPreservesFirstSeenOrder(t *testing.T) {
	got := ParseIDList("3, 1, 3, 2, 1")
	assert.Equal(t, []int64{3, 1, 2}, got)
}

func TestParseIDList_SkipsUnparseableTokens(t *testing.T) {
	got := ParseIDList("1, bob, 2, , 3")
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestParseIDList_Empty(t *testing.T) {
	assert.Nil(t, ParseIDList(""))
}
