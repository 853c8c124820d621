// internal/forms/registry.go
package forms

import (
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/interaction"
)

// Registry maps variant ids to their runners.
type Registry struct {
	runners map[string]*Runner
}

// NewRegistry builds a runner for every known variant from the forms config.
func NewRegistry(cfg config.FormsConfig, logger *zap.Logger, options ...RunnerOption) *Registry {
	reg := &Registry{runners: make(map[string]*Runner)}
	for _, v := range builtinVariants() {
		reg.runners[v.ID] = NewRunner(v, OptionsFromConfig(cfg, v.ID), logger, options...)
	}
	return reg
}

// OptionsFromConfig derives a variant's runner options.
func OptionsFromConfig(cfg config.FormsConfig, variant string) Options {
	return Options{
		URL:                   cfg.URLs[variant],
		LoadWait:              cfg.LoadWait,
		PageSettle:            cfg.PageSettle,
		StrictAnswers:         cfg.StrictAnswers,
		ChannelMatchThreshold: cfg.ChannelMatchThreshold,
		Interaction: interaction.Options{
			ElementTimeout: cfg.ElementTimeout,
			SettleDelay:    cfg.SettleDelay,
		},
	}
}

// GetRunner returns the runner for variant or an unknown-variant
// ConfigurationError.
func (r *Registry) GetRunner(variant string) (*Runner, error) {
	runner, ok := r.runners[variant]
	if !ok {
		return nil, &ConfigurationError{Kind: UnknownVariant, Name: variant}
	}
	return runner, nil
}

// IDs returns the known variant ids in order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.runners))
	for id := range r.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Variants returns the known variant tables ordered by id.
func (r *Registry) Variants() []*Variant {
	ids := r.IDs()
	out := make([]*Variant, len(ids))
	for i, id := range ids {
		out[i] = r.runners[id].Variant()
	}
	return out
}
