// Package lang defines the typed expression tree consumed by the engine.
//
// The surface parser is an external collaborator: it produces this tree with
// resolved ExprIds and hands it to the engine. Within this repository the
// tree is constructed either programmatically (Builder) or from CUE program
// documents (internal/compiler).
//
// IDENTITY:
//
// Every expression carries an ExprId assigned exactly once at build time,
// in preorder. ExprIds are the static half of a slot address: the engine
// pairs them with a runtime ScopeId to obtain the unique SlotKey of one
// live reactive cell. ExprIds are never reassigned or reused for the
// lifetime of a program.
package lang
