// Package installer implements the Dependency Installer (spec.md §4.2):
// install a plugin's declared dependencies via the host package manager,
// skipping already-satisfied ones, as a blocking subprocess.
//
// Grounded on original_source/src/rag2f/core/morpheus/package_installer.py
// for the policy, and on the teacher's pkg/component/repository/github.go
// for the "run a subprocess, report progress" idiom (here via
// github.com/cheggaaa/pb/v3 instead of a download progress bar).
package installer

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// Manager is the Go analogue of "go install"/"go get": it shells out to
// the host toolchain's package manager rather than reimplementing
// dependency resolution.
type Manager struct {
	// Command is the package-manager binary, e.g. "go". Defaults to "go"
	// if empty.
	Command string
	// ShowProgress enables a cheggaaa/pb spinner while the subprocess runs;
	// CLI callers want this, tests do not.
	ShowProgress bool
}

// New returns a Manager defaulting to the "go" toolchain.
func New() *Manager {
	return &Manager{Command: "go"}
}

// Available reports whether the configured package manager exists on PATH
// (spec.md §4.2 "detect package manager availability... if none exists,
// log and skip").
func (m *Manager) Available() bool {
	cmd := m.Command
	if cmd == "" {
		cmd = "go"
	}
	_, err := exec.LookPath(cmd)
	return err == nil
}

// BuildManifestSource describes an editable/local install target, the Go
// analogue of "pip install -e .".
type BuildManifestSource struct {
	Dir string
}

// RequirementsSource describes a pinned dependency list; AlreadySatisfied
// is pre-filtered by the caller (spec.md §4.2 "already-installed
// requirements excluded").
type RequirementsSource struct {
	Requirements     []string
	AlreadySatisfied map[string]bool
}

// Install runs the installer policy: prefer the build manifest (editable
// install) over a bare requirements list, skip entirely if no package
// manager is available, and fail hard on a non-zero exit code.
func (m *Manager) Install(ctx context.Context, pluginID string, build *BuildManifestSource, reqs *RequirementsSource) error {
	if !m.Available() {
		return nil // logged by the caller: no package manager, skip.
	}

	if build != nil {
		return m.installEditable(ctx, pluginID, build.Dir)
	}
	if reqs != nil {
		return m.installFiltered(ctx, pluginID, reqs)
	}
	return nil
}

func (m *Manager) installEditable(ctx context.Context, pluginID, dir string) error {
	args := []string{"install", dir + "/..."}
	return m.run(ctx, pluginID, args)
}

// installFiltered writes the still-unsatisfied requirements to a temporary
// file, removed on every exit path (spec.md §4.2 "temporary requirement
// files... removed on all exit paths"), and installs them by passing the
// same requirements to the package manager as arguments; the install
// command does not read the file.
func (m *Manager) installFiltered(ctx context.Context, pluginID string, reqs *RequirementsSource) error {
	filtered := make([]string, 0, len(reqs.Requirements))
	for _, r := range reqs.Requirements {
		if !reqs.AlreadySatisfied[r] {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	tmp, err := os.CreateTemp("", "fluxrag-requirements-*.txt")
	if err != nil {
		return fluxerrors.NewBackendFailure("installer", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	for _, r := range filtered {
		if _, err := tmp.WriteString(r + "\n"); err != nil {
			tmp.Close()
			return fluxerrors.NewBackendFailure("installer", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fluxerrors.NewBackendFailure("installer", err)
	}

	args := []string{"install"}
	args = append(args, filtered...)
	return m.run(ctx, pluginID, args)
}

func (m *Manager) run(ctx context.Context, pluginID string, args []string) error {
	cmd := m.Command
	if cmd == "" {
		cmd = "go"
	}

	var bar *pb.ProgressBar
	if m.ShowProgress {
		bar = pb.StartNew(1)
		bar.SetTemplateString(`{{ green "installing" }} ` + filepath.Clean(pluginID) + ` {{ cycle . "|" "/" "-" "\\" }}`)
		defer bar.Finish()
	}

	var stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd, args...)
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return fluxerrors.NewBackendFailure("installer", errWithStderr(err, stderr.String()))
	}
	if bar != nil {
		bar.Increment()
	}
	return nil
}

type stderrError struct {
	cause  error
	stderr string
}

func (e *stderrError) Error() string {
	if e.stderr == "" {
		return e.cause.Error()
	}
	return e.cause.Error() + ": " + e.stderr
}

func (e *stderrError) Unwrap() error { return e.cause }

func errWithStderr(cause error, stderr string) error {
	return &stderrError{cause: cause, stderr: stderr}
}
