// Package core is the orchestration layer.  It picks a backend from
// the configuration, wires scanner, supervisor and front end together,
// and owns their teardown.
//
// Architecture layers (bottom → top):
//
//	transport / bluez  →  session  →  supervisor  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point for backend
// selection; nothing above it knows which radio stack is in use.
package core

import "context"

// Frontend is the interactive side of the app.  Run returns when the
// user quits or ctx is done.
type Frontend interface {
	Run(ctx context.Context) error
}
