// Package remote controls role processes on cluster hosts over ssh. Long
// running roles live in named detached tmux sessions so they survive the
// control connection closing and can be interrupted later by name.
package remote

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Handle follows one captured remote command to completion
type Handle interface {
	// Wait blocks until the command exits and returns its exit code.
	// A transport failure reports as exit code -1.
	Wait() int
	// Stdout returns the buffered standard output; call after Wait
	Stdout() string
	// Stderr returns the buffered standard error; call after Wait
	Stderr() string
}

// Controller runs commands on remote hosts. All operations address a host by
// its public (control) address and are safe to issue concurrently across
// hosts.
type Controller interface {
	// Launch starts command inside a new detached session and returns once
	// the start request completes, not when the session finishes
	Launch(addr, session, command string, args ...string) error
	// LaunchCaptured starts command with its output captured into buffers
	// owned by the returned handle
	LaunchCaptured(addr, command string, args ...string) (Handle, error)
	// Signal delivers an interactive keystroke to a named session;
	// fire-and-forget, never retried
	Signal(addr, session, key string)
	// KillByName terminates matching processes best-effort; no matching
	// process is not an error
	KillByName(addr, name string) error
}

// SSHController implements Controller by shelling out to the system ssh
type SSHController struct{}

func (c SSHController) run(addr string, args ...string) error {
	cmd := sshCommand(addr, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ssh %s %s: %w: %s", addr, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (c SSHController) Launch(addr, session, command string, args ...string) error {
	tmuxArgs := append([]string{"tmux", "new-session", "-d", "-s", session, command}, args...)
	return c.run(addr, tmuxArgs...)
}

func (c SSHController) LaunchCaptured(addr, command string, args ...string) (Handle, error) {
	capture := &Capture{cmd: sshCommand(addr, append([]string{command}, args...)...)}
	capture.cmd.Stdout = &capture.stdout
	capture.cmd.Stderr = &capture.stderr

	if err := capture.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ssh %s %s: %w", addr, command, err)
	}
	return capture, nil
}

func (c SSHController) Signal(addr, session, key string) {
	if err := c.run(addr, "tmux", "send-key", "-t", session, key); err != nil {
		log.Debugf("signal %s on %s: %v", key, addr, err)
	}
}

func (c SSHController) KillByName(addr, name string) error {
	err := sshCommand(addr, "pkill", name).Run()
	if benignKillError(err) {
		return nil
	}
	return fmt.Errorf("pkill %s on %s: %w", name, addr, err)
}

// CopyFile sends a local file to the host's home directory under remoteName
func (c SSHController) CopyFile(addr, localPath, remoteName string) error {
	cmd := exec.Command("scp", "-q", localPath, addr+":"+remoteName)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("scp %s to %s: %w: %s", localPath, addr, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func sshCommand(addr string, args ...string) *exec.Cmd {
	return exec.Command("ssh", append([]string{"-q", addr}, args...)...)
}

// benignKillError reports whether a pkill failure only means no process
// matched (exit status 1), which keeps kill-by-name idempotent.
func benignKillError(err error) bool {
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 1
}

// Capture is the ssh-backed Handle. Each capture owns its own buffers, so
// draining one never blocks another.
type Capture struct {
	cmd      *exec.Cmd
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	waitOnce sync.Once
	exitCode int
}

func (c *Capture) Wait() int {
	c.waitOnce.Do(func() {
		err := c.cmd.Wait()
		if err == nil {
			c.exitCode = 0
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.exitCode = exitErr.ExitCode()
			return
		}
		log.Warnf("wait %s: %v", strings.Join(c.cmd.Args, " "), err)
		c.exitCode = -1
	})
	return c.exitCode
}

func (c *Capture) Stdout() string {
	return c.stdout.String()
}

func (c *Capture) Stderr() string {
	return c.stderr.String()
}
