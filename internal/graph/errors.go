package graph

import (
	"fmt"

	"github.com/tsukumogami/hako/internal/ref"
)

// LoopError reports a requirement pointing back at one of its own
// ancestors.
type LoopError struct {
	Node    ref.Reference
	Require ref.Reference
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("loop detected: %q requires %q which is an ancestor too",
		e.Node, e.Require)
}

// ConflictError reports two dependents requiring different references
// under the same package name. The first-seen reference is kept.
type ConflictError struct {
	Node     ref.Reference
	Require  ref.Reference
	Previous ref.Reference
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict in %q: requirement %q conflicts with already defined %q; "+
		"keeping %q (override it in your base requirements to change it)",
		e.Node, e.Require, e.Previous, e.Previous)
}

// RevisionConflictError reports the same reference required with two
// different pinned revisions.
type RevisionConflictError struct {
	Node    ref.Reference
	Require ref.Reference
}

func (e *RevisionConflictError) Error() string {
	return fmt.Sprintf("conflict in %q: different revisions of %q have been requested",
		e.Node, e.Require)
}

// RequirementError wraps a recipe fetch failure with the requiring
// side, so the user sees which edge failed.
type RequirementError struct {
	Require ref.Reference
	From    string
	Err     error
}

func (e *RequirementError) Error() string {
	return fmt.Sprintf("failed requirement %q from %q: %v", e.Require, e.From, e.Err)
}

func (e *RequirementError) Unwrap() error { return e.Err }

// AliasLoopError reports alias recipes forwarding in a cycle.
type AliasLoopError struct {
	Ref ref.Reference
}

func (e *AliasLoopError) Error() string {
	return fmt.Sprintf("alias loop detected while resolving %q", e.Ref)
}
