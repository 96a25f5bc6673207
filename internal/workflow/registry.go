// Package workflow provides the phase registry, execution ordering, retry
// logic, and orchestration for the systematic review pipeline.
package workflow

import (
	"fmt"
)

// DependencyError reports an invalid phase registration: an unknown
// dependency, a duplicate phase, or a cycle.
type DependencyError struct {
	Phase   string
	Message string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("phase %q: %s", e.Phase, e.Message)
}

// phaseNode is one registered phase.
type phaseNode struct {
	name     string
	deps     []string
	critical bool
	group    string
}

// Registry declares the DAG of workflow phases and computes a single valid
// linear execution order. Phases must be registered leaves-first: a
// registration naming an unknown dependency fails, which also makes cycles
// unrepresentable through the public API. Declaration order is therefore a
// valid topological order and serves as the deterministic tie-break.
type Registry struct {
	order []string
	nodes map[string]*phaseNode
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*phaseNode)}
}

// Register declares a phase with its dependencies. Dependencies must already
// be registered. The group names a parallel execution group; phases sharing
// a non-empty group and adjacent positions in the execution order run
// concurrently.
func (r *Registry) Register(name string, deps []string, critical bool, group string) error {
	if name == "" {
		return &DependencyError{Phase: name, Message: "phase name must not be empty"}
	}
	if _, exists := r.nodes[name]; exists {
		return &DependencyError{Phase: name, Message: "already registered"}
	}
	for _, dep := range deps {
		if dep == name {
			return &DependencyError{Phase: name, Message: "depends on itself"}
		}
		if _, ok := r.nodes[dep]; !ok {
			return &DependencyError{Phase: name, Message: fmt.Sprintf("unknown dependency %q (register leaves first)", dep)}
		}
	}

	r.nodes[name] = &phaseNode{
		name:     name,
		deps:     append([]string(nil), deps...),
		critical: critical,
		group:    group,
	}
	r.order = append(r.order, name)
	return nil
}

// ExecutionOrder returns the deterministic linear order satisfying every
// dependency edge: for any dependency A of B, A's index is strictly less
// than B's.
func (r *Registry) ExecutionOrder() []string {
	return append([]string(nil), r.order...)
}

// Dependencies returns the declared dependencies of a phase, or nil for an
// unknown phase.
func (r *Registry) Dependencies(name string) []string {
	node, ok := r.nodes[name]
	if !ok {
		return nil
	}
	return append([]string(nil), node.deps...)
}

// IsCritical reports whether the named phase aborts the workflow on failure.
// Unknown phases are treated as critical.
func (r *Registry) IsCritical(name string) bool {
	node, ok := r.nodes[name]
	if !ok {
		return true
	}
	return node.critical
}

// Group returns the parallel group of a phase (empty for sequential phases).
func (r *Registry) Group(name string) string {
	node, ok := r.nodes[name]
	if !ok {
		return ""
	}
	return node.group
}

// ValidateDependencies returns (not raises) every dependency problem found:
// dangling references and cycles. The public Register API prevents both, so
// a non-empty result indicates state restored from an incompatible source.
func (r *Registry) ValidateDependencies() []error {
	var errs []error

	for _, name := range r.order {
		for _, dep := range r.nodes[name].deps {
			if _, ok := r.nodes[dep]; !ok {
				errs = append(errs, &DependencyError{Phase: name, Message: fmt.Sprintf("dangling dependency %q", dep)})
			}
		}
	}

	// Cycle detection by DFS with colouring.
	const (
		white = 0
		grey  = 1
		black = 2
	)
	colour := make(map[string]int, len(r.nodes))

	var visit func(name string) bool
	visit = func(name string) bool {
		colour[name] = grey
		for _, dep := range r.nodes[name].deps {
			if _, ok := r.nodes[dep]; !ok {
				continue // already reported as dangling
			}
			switch colour[dep] {
			case grey:
				errs = append(errs, &DependencyError{Phase: name, Message: fmt.Sprintf("dependency cycle through %q", dep)})
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colour[name] = black
		return false
	}

	for _, name := range r.order {
		if colour[name] == white {
			visit(name)
		}
	}

	return errs
}

// NextPhase computes the resume point: the first phase in execution order
// that is not in completed and whose dependencies all are. Returns false
// when every phase is complete or no phase is runnable.
func (r *Registry) NextPhase(completed map[string]bool) (string, bool) {
	for _, name := range r.order {
		if completed[name] {
			continue
		}
		ready := true
		for _, dep := range r.nodes[name].deps {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if ready {
			return name, true
		}
	}
	return "", false
}

// CompletedThrough returns the set of phases at or before lastCompleted in
// execution order, for resume-point computation from a checkpoint.
func (r *Registry) CompletedThrough(lastCompleted string) map[string]bool {
	completed := make(map[string]bool)
	for _, name := range r.order {
		completed[name] = true
		if name == lastCompleted {
			return completed
		}
	}
	// Unknown phase: nothing is known to be complete.
	return make(map[string]bool)
}
