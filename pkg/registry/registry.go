// Package registry maps node kinds to their executor implementations.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// Registry is the static node-kind dispatch table, populated once at process
// start from the closed kind enumeration.
type Registry struct {
	logger    *slog.Logger
	executors map[models.NodeKind]protocol.Executor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[models.NodeKind]protocol.Executor),
	}
}

func (r *Registry) Register(executor protocol.Executor) {
	r.executors[executor.Kind()] = executor
}

// Resolve returns the executor for a kind. An unregistered kind is a
// data-integrity bug (a stored graph references a kind with no
// implementation), so the caller must abort the run rather than skip the
// node.
func (r *Registry) Resolve(kind models.NodeKind) (protocol.Executor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("node kind %q not registered", kind)
	}

	return executor, nil
}

// Kinds returns the registered node kinds.
func (r *Registry) Kinds() []models.NodeKind {
	kinds := make([]models.NodeKind, 0, len(r.executors))
	for kind := range r.executors {
		kinds = append(kinds, kind)
	}

	return kinds
}

// ValidateConfig checks a node's config payload against the schema its
// executor publishes. Violations are reported together.
func (r *Registry) ValidateConfig(kind models.NodeKind, config map[string]any) error {
	executor, err := r.Resolve(kind)
	if err != nil {
		return err
	}

	schema := executor.Schema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	configLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, configLoader)
	if err != nil {
		return fmt.Errorf("failed to validate config for kind %q: %w", kind, err)
	}

	if !result.Valid() {
		detail := ""
		for _, violation := range result.Errors() {
			if detail != "" {
				detail += "; "
			}

			detail += violation.String()
		}

		return fmt.Errorf("invalid config for kind %q: %s", kind, detail)
	}

	return nil
}
