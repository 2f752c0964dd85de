// Package assignee resolves a workflow step's assignee_kind/assignee_value
// into concrete (user_id | role) targets for task materialization. Pure
// resolution logic — grounded on original_source's resolve_assignee and
// create_tasks_for_step.
package assignee

import (
	"strconv"
	"strings"

	"github.com/c360studio/oaengine/internal/domain"
)

// Creator is the subset of actor state assignee resolution needs about the
// request's owner.
type Creator struct {
	ID        int64
	ManagerID *int64
	Dept      string
}

// Target is a single resolved assignment: exactly one of UserID/Role is set.
type Target struct {
	UserID *int64
	Role   string
}

// Resolve implements the single-assignee resolution rules for
// manager/role/user steps. Callers resolving a users_all/users_any step use
// ResolveGroup instead.
func Resolve(creator Creator, kind domain.AssigneeKind, value string) Target {
	switch kind {
	case domain.AssigneeManager:
		if creator.ManagerID != nil {
			id := *creator.ManagerID
			return Target{UserID: &id}
		}
		return Target{Role: "admin"}

	case domain.AssigneeRole:
		if value != "" {
			return Target{Role: value}
		}
		return Target{Role: "admin"}

	case domain.AssigneeUser:
		if id, ok := parseID(value); ok {
			return Target{UserID: &id}
		}
		return Target{Role: "admin"}

	default:
		return Target{Role: "admin"}
	}
}

// ResolveGroup expands a users_all/users_any step's assignee_value into the
// set of user ids to materialize one task each for. "all"/"*"/"everyone"
// (case-insensitive) expands to every known user id excluding the creator;
// otherwise value is parsed as a comma/semicolon-separated, deduplicated
// list of user ids in first-seen order. allUserIDs excludes the creator
// already removed by the caller is not required — this function removes it.
func ResolveGroup(creator Creator, value string, allUserIDs []int64) []int64 {
	norm := strings.ToLower(strings.TrimSpace(value))
	if norm == "all" || norm == "*" || norm == "everyone" {
		out := make([]int64, 0, len(allUserIDs))
		for _, id := range allUserIDs {
			if id != creator.ID {
				out = append(out, id)
			}
		}
		return out
	}
	return ParseIDList(value)
}

// ParseIDList parses a comma/semicolon-separated list of integer user ids,
// trimming whitespace, skipping unparseable tokens, and deduplicating while
// preserving first-seen order.
func ParseIDList(value string) []int64 {
	if value == "" {
		return nil
	}
	normalized := strings.NewReplacer(";", ",").Replace(value)
	seen := make(map[int64]bool)
	var out []int64
	for _, part := range strings.Split(normalized, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, ok := parseID(part)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func parseID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}
