// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

package target

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/Bluebear171/honggfuzz/pkg/config"
	"github.com/Bluebear171/honggfuzz/pkg/idgen"
)

// Unix is the default Target implementation: it execs cfg.Cmdline
// (substituting config.FilePlaceholder with the input path, or piping
// the input over stdin when cfg.FuzzStdin is set) and reaps it with
// os/exec's Wait, translating the resulting syscall.WaitStatus into an
// Observation. It does not itself collect coverage counters — that
// requires a real instrumentation back-end (spec §1) — so Counters is
// always zero from this implementation; a coverage-aware Target wraps
// or replaces Unix.
type Unix struct {
	Cfg *config.Config
}

type unixProcess struct {
	cmd       *exec.Cmd
	inputPath string
	started   int64 // idgen.MonotonicMillis() at Launch
}

// addrNoRandomize is Linux's ADDR_NO_RANDOMIZE personality(2) flag
// (include/uapi/linux/personality.h); x/sys/unix doesn't wrap
// personality(2) itself, only the raw syscall number.
const addrNoRandomize = 0x0040000

// DisableASLR sets ADDR_NO_RANDOMIZE via personality(2) for this
// process and, because personality is preserved across fork+exec, for
// every target it subsequently launches (SPEC_FULL §5/§6
// disable_randomization; original source sets the flag per-child in
// arch_launchChild — Go's os/exec gives no pre-exec hook in the child,
// so the equivalent here is setting the parent's personality once
// before any worker starts, since every worker shares one Config).
func DisableASLR() error {
	current, _, errno := unix.Syscall(unix.SYS_PERSONALITY, 0xffffffff, 0, 0)
	if errno != 0 {
		return fmt.Errorf("target: reading personality: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_PERSONALITY, current|addrNoRandomize, 0, 0); errno != 0 {
		return fmt.Errorf("target: disabling ASLR: %w", errno)
	}
	return nil
}

// Launch starts cfg.Cmdline against inputPath (spec §4.4 step 1). On
// failure to start at all, it returns a *LaunchError; the spec treats
// this the same as a child that execs and immediately exits non-zero —
// both are "not a crash" once reaped.
func (u *Unix) Launch(inputPath string) (Process, error) {
	if len(u.Cfg.Cmdline) == 0 {
		return nil, &LaunchError{Path: "", Err: fmt.Errorf("empty cmdline")}
	}
	argv := substitutePlaceholder(u.Cfg.Cmdline, inputPath, u.Cfg.FuzzStdin)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if u.Cfg.NullStdio {
		devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, &LaunchError{Path: argv[0], Err: err}
		}
		cmd.Stdout = devnull
		cmd.Stderr = devnull
		defer devnull.Close()
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}

	if u.Cfg.FuzzStdin {
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, &LaunchError{Path: argv[0], Err: err}
		}
		cmd.Stdin = f
		defer f.Close()
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: argv[0], Err: err}
	}
	return &unixProcess{cmd: cmd, inputPath: inputPath, started: idgen.MonotonicMillis()}, nil
}

func substitutePlaceholder(cmdline []string, inputPath string, fuzzStdin bool) []string {
	argv := make([]string, len(cmdline))
	copy(argv, cmdline)
	if fuzzStdin {
		return argv
	}
	for i, tok := range argv {
		if tok == config.FilePlaceholder {
			argv[i] = inputPath
		}
	}
	return argv
}

func (p *unixProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Reap blocks until the process exits or ctx is cancelled, in which case
// it kills the process group and reports Timeout (spec §4.4 step 2).
func (p *unixProcess) Reap(ctx context.Context) (*Observation, error) {
	waitDone := make(chan error, 1)
	go func() { waitDone <- p.cmd.Wait() }()

	var (
		err      error
		timedOut bool
	)
	select {
	case err = <-waitDone:
	case <-ctx.Done():
		timedOut = true
		killGroup(p.PID())
		err = <-waitDone
	}

	obs := &Observation{
		PID:    p.PID(),
		WallMS: idgen.MonotonicMillis() - p.started,
	}
	if timedOut {
		obs.ExitSignal = Timeout
		return obs, nil
	}

	status, ok := exitStatus(err)
	if !ok {
		// Neither a clean exit nor a recognizable wait status: treat it
		// as a launch-time failure surfacing late, not a crash.
		return obs, err
	}
	if status.Signaled() {
		obs.ExitSignal = Signal(status.Signal())
		// No symbolizer: the only frame we can report is the signal
		// itself. pkg/classify treats a single-frame backtrace as
		// "shallow" and tags its fingerprint accordingly (spec §4.5).
		obs.Backtrace = []uint64{uint64(obs.ExitSignal)}
	} else {
		obs.ExitSignal = SigNone
	}
	return obs, nil
}

func exitStatus(err error) (syscall.WaitStatus, bool) {
	if err == nil {
		return syscall.WaitStatus(0), true
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return syscall.WaitStatus(0), false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return status, ok
}

func killGroup(pid int) {
	if pid <= 0 {
		return
	}
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		unix.Kill(pid, unix.SIGKILL)
		return
	}
	unix.Kill(-pgid, unix.SIGKILL)
}

