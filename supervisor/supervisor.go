/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package supervisor is the one place in the daemon that knows how to
// fork/exec an external helper binary. It is the Go analog of
// ap_common/aputil's Child type, adapted to the stronger hygiene the
// spec requires: a sanitized environment, no inherited descriptors
// beyond the standard three (redirected to /dev/null), and a fixed
// working directory.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// fixedPath is the only PATH a helper process ever sees.
const fixedPath = "PATH=/sbin:/usr/sbin:/bin:/usr/bin"

// fixedWD is the directory every helper is chdir'd into before exec.
const fixedWD = "/tmp"

// Logger is the narrow logging surface Supervisor needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Supervisor runs external helper programs with sanitized descriptors
// and environment. It refuses to exec anything that is not a regular,
// executable file.
type Supervisor struct {
	log Logger
}

// New returns a Supervisor that logs through log.
func New(log Logger) *Supervisor {
	return &Supervisor{log: log}
}

func checkExecutable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if fi.Mode()&0111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func newCmd(path string, argv []string) (*exec.Cmd, error) {
	if err := checkExecutable(path); err != nil {
		return nil, err
	}

	cmd := exec.Command(path, argv...)
	cmd.Env = []string{fixedPath}
	cmd.Dir = fixedWD
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	return cmd, nil
}

// RunOnce execs path with argv, waits synchronously, and logs an
// abnormal exit. It is for one-shot helpers; nothing in the daemon
// calls it, since ipconfig programs addresses and routes via netlink.
func (s *Supervisor) RunOnce(path string, argv ...string) error {
	cmd, err := newCmd(path, argv)
	if err != nil {
		return err
	}
	defer closeStdFiles(cmd)

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			s.log.Warnf("%s %v: %s", path, argv, exitErr.String())
		} else {
			s.log.Warnf("%s %v: %v", path, argv, err)
		}
		return err
	}
	return nil
}

func closeStdFiles(cmd *exec.Cmd) {
	if f, ok := cmd.Stdin.(*os.File); ok {
		f.Close()
	}
}

// Child tracks a long-running, persistently-supervised subprocess
// (the DHCP client).
type Child struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	path string
	argv []string
	log  Logger
}

// Spawn starts path as a tracked long-running child. Unlike RunOnce,
// Spawn does not wait for the process; use Terminate or Poll to manage
// its lifetime.
func (s *Supervisor) Spawn(path string, argv ...string) (*Child, error) {
	cmd, err := newCmd(path, argv)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", path, err)
	}

	return &Child{cmd: cmd, path: path, argv: argv, log: s.log}, nil
}

// PID returns the child's process ID.
func (c *Child) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return -1
	}
	return c.cmd.Process.Pid
}

// Terminate sends SIGINT and reaps the child, waiting up to the given
// timeout before escalating to SIGKILL.
func (c *Child) Terminate(timeout time.Duration) error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = cmd.Process.Signal(syscall.SIGINT)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		c.logExit(err)
		return nil
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		err := <-done
		c.logExit(err)
		return nil
	}
}

// Poll does a non-blocking reap: if the child has exited, it logs the
// status and returns true. It is called on every scheduler tick while
// a DHCP-managed AP is associated.
func (c *Child) Poll() (exited bool) {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return true
	}

	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
	if err != nil || pid == 0 {
		return false
	}

	if ws.Signaled() {
		c.log.Warnf("%s (pid %d) killed by signal %v", c.path, pid, ws.Signal())
	} else if ws.ExitStatus() != 0 {
		c.log.Warnf("%s (pid %d) exited with status %d", c.path, pid, ws.ExitStatus())
	} else {
		c.log.Infof("%s (pid %d) exited normally", c.path, pid)
	}
	return true
}

func (c *Child) logExit(err error) {
	if err == nil {
		return
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		c.log.Warnf("%s (pid %d): %s", c.path, c.PID(), exitErr.String())
	}
}
