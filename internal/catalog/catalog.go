// Package catalog loads/stores workflow variants and their ordered steps,
// and resolves the default variant for a (request_type, dept) pair.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/errs"
	"github.com/c360studio/oaengine/internal/store"
)

// Catalog resolves and administers the workflow variant catalog.
type Catalog struct {
	store *store.Store
}

// New creates a Catalog backed by the given store.
func New(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

// GetVariant returns a variant by key, or nil if it does not exist.
func (c *Catalog) GetVariant(ctx context.Context, workflowKey string) (*domain.WorkflowVariant, error) {
	return c.store.GetVariant(ctx, workflowKey)
}

// ListSteps returns a variant's ordered steps.
func (c *Catalog) ListSteps(ctx context.Context, workflowKey string) ([]*domain.WorkflowVariantStep, error) {
	return c.store.ListSteps(ctx, workflowKey)
}

// ListAvailable returns enabled variants visible to a creator in the given
// dept: every enabled global variant, plus any enabled dept-scoped variant
// whose scope_value matches dept (exact match, or as a doublestar glob —
// e.g. scope_value "eng-*" matches dept "eng-platform"). Ordered by
// (category, name).
func (c *Catalog) ListAvailable(ctx context.Context, dept string) ([]*domain.WorkflowVariant, error) {
	all, err := c.store.ListVariants(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.WorkflowVariant, 0, len(all))
	for _, v := range all {
		if !v.Enabled {
			continue
		}
		switch v.ScopeKind {
		case domain.ScopeGlobal:
			out = append(out, v)
		case domain.ScopeDept:
			if dept != "" && deptMatches(v.ScopeValue, dept) {
				out = append(out, v)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// deptMatches reports whether scopeValue (an exact dept name, or a
// doublestar glob pattern) matches dept. Matching is case-sensitive,
// mirroring original_source's exact-string scope comparison for the
// non-glob case.
func deptMatches(scopeValue, dept string) bool {
	if scopeValue == dept {
		return true
	}
	if !strings.ContainsAny(scopeValue, "*?[{") {
		return false
	}
	ok, err := doublestar.Match(scopeValue, dept)
	return err == nil && ok
}

// ResolveDefault prefers the enabled default scoped to dept, then falls
// back to the enabled global default. Returns "" if neither exists.
func (c *Catalog) ResolveDefault(ctx context.Context, requestType, dept string) (string, error) {
	all, err := c.store.ListVariants(ctx)
	if err != nil {
		return "", err
	}

	var deptDefault, globalDefault *domain.WorkflowVariant
	for _, v := range all {
		if v.RequestType != requestType || !v.Enabled || !v.IsDefault {
			continue
		}
		switch {
		case v.ScopeKind == domain.ScopeDept && dept != "" && deptMatches(v.ScopeValue, dept):
			if deptDefault == nil {
				deptDefault = v
			}
		case v.ScopeKind == domain.ScopeGlobal:
			if globalDefault == nil {
				globalDefault = v
			}
		}
	}

	if deptDefault != nil {
		return deptDefault.WorkflowKey, nil
	}
	if globalDefault != nil {
		return globalDefault.WorkflowKey, nil
	}
	return "", nil
}

// ResolveWorkflowKey implements the request-create variant resolution
// chain from §4.2: an explicit key (validated enabled), else
// ResolveDefault, else the request_type itself.
func (c *Catalog) ResolveWorkflowKey(ctx context.Context, requestedKey, requestType, dept string) (string, error) {
	if requestedKey != "" {
		v, err := c.store.GetVariant(ctx, requestedKey)
		if err != nil {
			return "", err
		}
		if v == nil || !v.Enabled {
			return "", errs.Validation(errs.CodeInvalidWorkflow, "workflow is not enabled: "+requestedKey)
		}
		return requestedKey, nil
	}

	def, err := c.ResolveDefault(ctx, requestType, dept)
	if err != nil {
		return "", err
	}
	if def != "" {
		return def, nil
	}
	return requestType, nil
}

// Upsert writes a variant. If is_default is true, every other variant
// sharing (request_type, scope_kind, scope_value) has is_default cleared
// atomically, guaranteeing at most one default per scope.
func (c *Catalog) Upsert(ctx context.Context, v *domain.WorkflowVariant) error {
	lock := c.store.CatalogLock()
	lock.Lock()
	defer lock.Unlock()

	if v.IsDefault {
		all, err := c.store.ListVariants(ctx)
		if err != nil {
			return err
		}
		for _, other := range all {
			if other.WorkflowKey == v.WorkflowKey {
				continue
			}
			if other.RequestType == v.RequestType && other.ScopeKind == v.ScopeKind && other.ScopeValue == v.ScopeValue && other.IsDefault {
				other.IsDefault = false
				if err := c.store.PutVariant(ctx, other); err != nil {
					return err
				}
			}
		}
	}

	return c.store.PutVariant(ctx, v)
}

// ReplaceSteps wipes and reinserts the ordered step set for a variant.
func (c *Catalog) ReplaceSteps(ctx context.Context, workflowKey string, steps []*domain.WorkflowVariantStep) error {
	lock := c.store.CatalogLock()
	lock.Lock()
	defer lock.Unlock()
	return c.store.ReplaceSteps(ctx, workflowKey, steps)
}

// Delete removes a variant and its steps. Existing requests' workflow_key
// is left dangling; Start/Advance fall back via request_type -> "generic".
func (c *Catalog) Delete(ctx context.Context, workflowKey string) error {
	lock := c.store.CatalogLock()
	lock.Lock()
	defer lock.Unlock()
	return c.store.DeleteVariant(ctx, workflowKey)
}

// ResolveSteps implements the fallback chain used by Start/Advance:
// workflow_key -> request_type -> "generic".
func (c *Catalog) ResolveSteps(ctx context.Context, workflowKey, requestType string) ([]*domain.WorkflowVariantStep, error) {
	steps, err := c.store.ListSteps(ctx, workflowKey)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 && workflowKey != requestType {
		steps, err = c.store.ListSteps(ctx, requestType)
		if err != nil {
			return nil, err
		}
	}
	if len(steps) == 0 {
		steps, err = c.store.ListSteps(ctx, "generic")
		if err != nil {
			return nil, err
		}
	}
	return steps, nil
}
