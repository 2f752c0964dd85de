// Package bootstrap seeds the workflow variant catalog on first boot and
// reconciles it against an optional on-disk override file, watching that
// file for changes the way the teacher's document watcher watches a
// sources directory (processor/source-ingester/watcher.go) — scaled down
// to a single file instead of a recursive tree, since a catalog seed is
// one YAML document rather than a corpus of source files.
package bootstrap

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/oaengine/internal/catalog"
	"github.com/c360studio/oaengine/internal/domain"
)

//go:embed seed.yaml
var embeddedSeed []byte

// seedFile is the on-disk shape of a catalog seed document.
type seedFile struct {
	Variants []seedVariant `yaml:"variants"`
}

type seedVariant struct {
	WorkflowKey string     `yaml:"workflow_key"`
	RequestType string     `yaml:"request_type"`
	Name        string     `yaml:"name"`
	Category    string     `yaml:"category"`
	ScopeKind   string     `yaml:"scope_kind"`
	ScopeValue  string     `yaml:"scope_value"`
	Enabled     bool       `yaml:"enabled"`
	IsDefault   bool       `yaml:"is_default"`
	Steps       []seedStep `yaml:"steps"`
}

type seedStep struct {
	StepOrder      int    `yaml:"step_order"`
	StepKey        string `yaml:"step_key"`
	AssigneeKind   string `yaml:"assignee_kind"`
	AssigneeValue  string `yaml:"assignee_value"`
	ConditionKind  string `yaml:"condition_kind"`
	ConditionValue string `yaml:"condition_value"`
}

// Bootstrapper seeds and reconciles the catalog against embedded and
// on-disk YAML seed documents.
type Bootstrapper struct {
	catalog      *catalog.Catalog
	logger       *slog.Logger
	watcher      *fsnotify.Watcher
	overrideFile string
}

// New builds a Bootstrapper. logger defaults to slog.Default() if nil.
func New(c *catalog.Catalog, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{catalog: c, logger: logger}
}

// SeedDefaults reconciles the embedded seed catalog into storage. Safe to
// call on every boot: existing variants are overwritten with the seed's
// definition, so this also serves as a migration path for older stored
// catalogs that predate a seed change.
func (b *Bootstrapper) SeedDefaults(ctx context.Context) error {
	var seed seedFile
	if err := yaml.Unmarshal(embeddedSeed, &seed); err != nil {
		return fmt.Errorf("decode embedded catalog seed: %w", err)
	}
	return b.apply(ctx, seed)
}

// ReconcileFile loads overridePath (a YAML document in the same shape as
// the embedded seed) and applies it on top of storage, then — if watch is
// true — watches the file for subsequent changes, reconciling on every
// write until ctx is canceled.
func (b *Bootstrapper) ReconcileFile(ctx context.Context, overridePath string, watch bool) error {
	if err := b.reconcileOnce(ctx, overridePath); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	b.watcher = fsw
	b.overrideFile = overridePath

	if err := fsw.Add(overridePath); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch catalog seed file: %w", err)
	}

	go b.watchLoop(ctx)
	return nil
}

// Stop closes the file watcher, if one was started.
func (b *Bootstrapper) Stop() error {
	if b.watcher == nil {
		return nil
	}
	return b.watcher.Close()
}

func (b *Bootstrapper) watchLoop(ctx context.Context) {
	defer func() { _ = b.watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := b.reconcileOnce(ctx, b.overrideFile); err != nil {
				b.logger.Error("catalog seed reconciliation failed", "path", b.overrideFile, "error", err)
			} else {
				b.logger.Info("catalog seed reconciled", "path", b.overrideFile)
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Error("catalog watcher error", "error", err)
		}
	}
}

func (b *Bootstrapper) reconcileOnce(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog override %s: %w", path, err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("decode catalog override %s: %w", path, err)
	}
	return b.apply(ctx, seed)
}

func (b *Bootstrapper) apply(ctx context.Context, seed seedFile) error {
	for _, v := range seed.Variants {
		variant := &domain.WorkflowVariant{
			WorkflowKey: v.WorkflowKey,
			RequestType: v.RequestType,
			Name:        v.Name,
			Category:    v.Category,
			ScopeKind:   domain.ScopeKind(v.ScopeKind),
			ScopeValue:  v.ScopeValue,
			Enabled:     v.Enabled,
			IsDefault:   v.IsDefault,
		}
		if err := b.catalog.Upsert(ctx, variant); err != nil {
			return fmt.Errorf("seed variant %s: %w", v.WorkflowKey, err)
		}

		steps := make([]*domain.WorkflowVariantStep, 0, len(v.Steps))
		for _, s := range v.Steps {
			steps = append(steps, &domain.WorkflowVariantStep{
				WorkflowKey:    v.WorkflowKey,
				StepOrder:      s.StepOrder,
				StepKey:        s.StepKey,
				AssigneeKind:   domain.AssigneeKind(s.AssigneeKind),
				AssigneeValue:  s.AssigneeValue,
				ConditionKind:  domain.ConditionKind(s.ConditionKind),
				ConditionValue: s.ConditionValue,
			})
		}
		if err := b.catalog.ReplaceSteps(ctx, v.WorkflowKey, steps); err != nil {
			return fmt.Errorf("seed steps for %s: %w", v.WorkflowKey, err)
		}
	}
	b.logger.Info("catalog seed applied", "variant_count", len(seed.Variants))
	return nil
}
