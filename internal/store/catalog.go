package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/c360studio/oaengine/internal/domain"
	"github.com/c360studio/oaengine/internal/errs"
)

// CatalogLock serializes catalog-wide mutations (upsert-with-default-
// clearing, step replacement) so "at most one is_default per scope" can be
// enforced by a read-modify-write over the full variant set.
func (s *Store) CatalogLock() *sync.Mutex { return s.locks.get("catalog") }

// GetVariant returns a workflow variant, or nil if it does not exist.
func (s *Store) GetVariant(ctx context.Context, workflowKey string) (*domain.WorkflowVariant, error) {
	entry, err := s.variants.Get(ctx, workflowKey)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errs.Storage("variant_load_failed", err)
	}
	var v domain.WorkflowVariant
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return nil, errs.Storage("variant_decode_failed", err)
	}
	return &v, nil
}

// ListVariants returns every stored workflow variant.
func (s *Store) ListVariants(ctx context.Context) ([]*domain.WorkflowVariant, error) {
	keys, err := s.variants.Keys(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errs.Storage("variant_list_failed", err)
	}
	out := make([]*domain.WorkflowVariant, 0, len(keys))
	for _, k := range keys {
		entry, err := s.variants.Get(ctx, k)
		if err != nil {
			continue
		}
		var v domain.WorkflowVariant
		if err := json.Unmarshal(entry.Value(), &v); err != nil {
			continue
		}
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowKey < out[j].WorkflowKey })
	return out, nil
}

// PutVariant writes a single variant row verbatim (no default-clearing;
// callers needing the upsert invariant use internal/catalog.Catalog.Upsert).
func (s *Store) PutVariant(ctx context.Context, v *domain.WorkflowVariant) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.Storage("variant_encode_failed", err)
	}
	if _, err := s.variants.Put(ctx, v.WorkflowKey, data); err != nil {
		return errs.Storage("variant_store_failed", err)
	}
	return nil
}

// DeleteVariant removes a variant and its steps. Requests referencing it
// by workflow_key are left dangling; the engine's fallback chain handles
// that at read time.
func (s *Store) DeleteVariant(ctx context.Context, workflowKey string) error {
	if err := s.variants.Delete(ctx, workflowKey); err != nil && !isNotFound(err) {
		return errs.Storage("variant_delete_failed", err)
	}
	if err := s.steps.Delete(ctx, workflowKey); err != nil && !isNotFound(err) {
		return errs.Storage("steps_delete_failed", err)
	}
	return nil
}

// stepSet is the per-variant step list stored under one KV key.
type stepSet struct {
	Steps []*domain.WorkflowVariantStep `json:"steps"`
}

// ListSteps returns a variant's steps ordered by step_order.
func (s *Store) ListSteps(ctx context.Context, workflowKey string) ([]*domain.WorkflowVariantStep, error) {
	entry, err := s.steps.Get(ctx, workflowKey)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errs.Storage("steps_load_failed", err)
	}
	var set stepSet
	if err := json.Unmarshal(entry.Value(), &set); err != nil {
		return nil, errs.Storage("steps_decode_failed", err)
	}
	sort.Slice(set.Steps, func(i, j int) bool { return set.Steps[i].StepOrder < set.Steps[j].StepOrder })
	return set.Steps, nil
}

// ReplaceSteps wipes and reinserts the ordered step set for a variant.
func (s *Store) ReplaceSteps(ctx context.Context, workflowKey string, steps []*domain.WorkflowVariantStep) error {
	sorted := append([]*domain.WorkflowVariantStep(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StepOrder < sorted[j].StepOrder })

	data, err := json.Marshal(stepSet{Steps: sorted})
	if err != nil {
		return errs.Storage("steps_encode_failed", err)
	}
	if _, err := s.steps.Put(ctx, workflowKey, data); err != nil {
		return errs.Storage("steps_store_failed", err)
	}
	return nil
}
