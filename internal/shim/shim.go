// Package shim implements the sandbox-side execution shim. It is the
// container entrypoint: it resolves file-reference arguments into local
// paths, runs the plugin process, and uploads the raw stdout as a produced
// file. The plugin itself never sees a credential beyond the capability
// token in its environment.
package shim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/catalog"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
)

// ExitShimFailure is returned when the shim itself fails: a file download,
// the process start, or the output upload. It is outside the conventional
// 0-124 plugin range so the scheduler can classify it as a protocol error
// rather than a plugin error.
const ExitShimFailure = 125

// Environment contract, mirrored from the scheduler side.
const (
	EnvAPIBaseURL = "OPENKAT_API"
	EnvToken      = "OPENKAT_TOKEN"
	EnvPluginID   = "PLUGIN_ID"
	EnvTaskID     = "OPENKAT_TASK_ID"
)

const (
	fileRefPrefix = "{file/"
	fileRefSuffix = "}"

	apiTimeout = 60 * time.Second
)

// Catalog is the slice of the catalog API the shim needs.
type Catalog interface {
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	CreateFile(ctx context.Context, name, fileType string, content io.Reader) (*catalog.File, error)
}

// Shim resolves arguments and supervises one plugin process.
type Shim struct {
	catalog  Catalog
	pluginID string
	taskID   string
	workDir  string
	stderr   io.Writer
}

// New creates a shim over an explicit catalog client.
func New(cat Catalog, pluginID, taskID, workDir string, stderr io.Writer) *Shim {
	return &Shim{
		catalog:  cat,
		pluginID: pluginID,
		taskID:   taskID,
		workDir:  workDir,
		stderr:   stderr,
	}
}

// FromEnv builds a shim from the sandbox environment contract.
func FromEnv() (*Shim, error) {
	baseURL := os.Getenv(EnvAPIBaseURL)
	token := os.Getenv(EnvToken)
	pluginID := os.Getenv(EnvPluginID)
	taskID := os.Getenv(EnvTaskID)
	if baseURL == "" || token == "" || pluginID == "" || taskID == "" {
		return nil, fmt.Errorf("incomplete sandbox environment: %s, %s, %s and %s are required",
			EnvAPIBaseURL, EnvToken, EnvPluginID, EnvTaskID)
	}

	workDir, err := os.MkdirTemp("", "kat-input-")
	if err != nil {
		return nil, fmt.Errorf("failed to create input directory: %w", err)
	}

	return New(catalog.NewWithToken(baseURL, token, apiTimeout), pluginID, taskID, workDir, os.Stderr), nil
}

// Run resolves file references in args, executes the plugin command, and
// uploads non-empty stdout as a produced file. It returns the process exit
// code, or ExitShimFailure when the shim itself failed.
func (s *Shim) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(s.stderr, "shim: no command to run")
		return ExitShimFailure
	}

	resolved, err := s.resolveFileRefs(ctx, args)
	if err != nil {
		fmt.Fprintf(s.stderr, "shim: %v\n", err)
		return ExitShimFailure
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, resolved[0], resolved[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = s.stderr
	cmd.Env = os.Environ()

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(s.stderr, "shim: failed to run plugin process: %v\n", err)
			return ExitShimFailure
		}
		exitCode = exitErr.ExitCode()
	}

	// Raw output is uploaded even for a failed plugin: partial output is
	// evidence. An empty stdout uploads nothing.
	if stdout.Len() > 0 {
		if err := s.uploadOutput(ctx, &stdout); err != nil {
			fmt.Fprintf(s.stderr, "shim: %v\n", err)
			return ExitShimFailure
		}
	}

	return exitCode
}

// uploadOutput re-creates the task output file as any prior content plus
// this invocation's stdout. A per-item task runs one sandbox per input,
// sequentially, so the file ends up holding every invocation's output in
// input order under the single task.OutputKey the scheduler records.
func (s *Shim) uploadOutput(ctx context.Context, stdout *bytes.Buffer) error {
	key := task.OutputKey(s.taskID)

	var merged bytes.Buffer
	prior, err := s.catalog.DownloadFile(ctx, key)
	switch {
	case err == nil:
		_, copyErr := io.Copy(&merged, prior)
		prior.Close()
		if copyErr != nil {
			return fmt.Errorf("failed to read prior output: %w", copyErr)
		}
	case !catalog.IsNotFound(err):
		return fmt.Errorf("failed to check for prior output: %w", err)
	}
	merged.Write(stdout.Bytes())

	file, err := s.catalog.CreateFile(ctx, key, s.pluginID, &merged)
	if err != nil {
		return fmt.Errorf("failed to upload output: %w", err)
	}
	fmt.Fprintf(s.stderr, "shim: uploaded output file %s (%d bytes)\n", file.Key, file.Size)
	return nil
}

// resolveFileRefs downloads every "{file/<key>}" argument into the work
// directory and substitutes the local path. Other arguments pass through
// untouched.
func (s *Shim) resolveFileRefs(ctx context.Context, args []string) ([]string, error) {
	resolved := make([]string, len(args))
	for i, arg := range args {
		key, ok := fileRefKey(arg)
		if !ok {
			resolved[i] = arg
			continue
		}
		path, err := s.download(ctx, key, i)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch input file %q: %w", key, err)
		}
		resolved[i] = path
	}
	return resolved, nil
}

func (s *Shim) download(ctx context.Context, key string, index int) (string, error) {
	content, err := s.catalog.DownloadFile(ctx, key)
	if err != nil {
		return "", err
	}
	defer content.Close()

	f, err := os.CreateTemp(s.workDir, fmt.Sprintf("input-%d-*", index))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// fileRefKey extracts the file key from a "{file/<key>}" argument.
func fileRefKey(arg string) (string, bool) {
	if !strings.HasPrefix(arg, fileRefPrefix) || !strings.HasSuffix(arg, fileRefSuffix) {
		return "", false
	}
	key := arg[len(fileRefPrefix) : len(arg)-len(fileRefSuffix)]
	if key == "" {
		return "", false
	}
	return key, true
}
