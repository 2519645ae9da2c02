// Package sandbox defines the container engine contract the task executor
// runs plugins through.
package sandbox

import "context"

// RunSpec describes one sandboxed plugin run.
type RunSpec struct {
	Name  string // container name, unique per task attempt
	Image string
	Args  []string
	Env   []string

	Network    string // network the container attaches to; "none" isolates it
	ShimVolume string // volume holding the shim binary
	ShimMount  string // mount point of the shim volume inside the container
	Entrypoint string // path of the shim binary inside the container
}

// RunResult is the outcome of a finished sandbox run.
type RunResult struct {
	ExitCode   int
	Killed     bool // the run was killed because its context ended
	StderrTail string
}

// Engine runs containers to completion. Run blocks until the container
// exits or ctx ends; when ctx ends first, the container is killed and the
// result carries Killed.
type Engine interface {
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
}
