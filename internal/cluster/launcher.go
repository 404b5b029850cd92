package cluster

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// NodeSpec describes the process a Launcher should start.
type NodeSpec struct {
	ID          string
	Port        int
	Role        Role
	LeaderURL   string
	RegistryURL string
	SyncDelay   time.Duration
	AsyncDelay  time.Duration
}

// Handle is an opaque grip on a launched node process.
type Handle interface {
	// Terminate kills the process. Idempotent: terminating an already-dead
	// process is not an error.
	Terminate() error
	// Wait blocks until the process exits.
	Wait() error
}

// Launcher starts node processes. The coordinator holds one; tests swap in
// a fake so spawn logic can run without forking.
type Launcher interface {
	Launch(spec NodeSpec) (Handle, error)
}

// ExecLauncher launches the node binary as a child process.
type ExecLauncher struct {
	Binary string
	Log    zerolog.Logger
}

// Launch starts the node binary with flags derived from spec.
func (l *ExecLauncher) Launch(spec NodeSpec) (Handle, error) {
	args := []string{
		"--port", fmt.Sprintf("%d", spec.Port),
		"--id", spec.ID,
		"--role", string(spec.Role),
		"--registry", spec.RegistryURL,
	}
	if spec.Role == RoleFollower && spec.LeaderURL != "" {
		args = append(args, "--leader-url", spec.LeaderURL)
	}
	if spec.SyncDelay > 0 {
		args = append(args, "--sync-delay", spec.SyncDelay.String())
	}
	if spec.AsyncDelay > 0 {
		args = append(args, "--async-delay", spec.AsyncDelay.String())
	}

	cmd := exec.Command(l.Binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", spec.ID, err)
	}

	l.Log.Info().
		Str("node_id", spec.ID).
		Int("port", spec.Port).
		Int("pid", cmd.Process.Pid).
		Msg("node process started")

	return &execHandle{cmd: cmd}, nil
}

type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) Terminate() error {
	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil {
		// Already exited.
		return nil
	}
	// Reap so the child doesn't linger as a zombie.
	go h.cmd.Wait()
	return nil
}

func (h *execHandle) Wait() error {
	return h.cmd.Wait()
}
