// Copyright 2024 the hfuzz authors. All rights reserved.
// Use of this source code is governed by an Apache 2 LICENSE that can be found in the LICENSE file.

// Package osutil collects the small set of OS-facing helpers the engine
// needs (process spawning with a deadline, interrupt handling, atomic
// file replace) that the standard library doesn't provide directly.
package osutil

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	DefaultDirPerm  = 0755
	DefaultFilePerm = 0644
)

// Run starts cmd and kills its process group if it hasn't exited within
// timeout. Returns combined output regardless of outcome.
func Run(timeout time.Duration, cmd *exec.Cmd) (output []byte, timedOut bool, err error) {
	var buf []byte
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, false, fmt.Errorf("osutil: pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		outW.Close()
		outR.Close()
		return nil, false, fmt.Errorf("osutil: start %v: %w", cmd.Args, err)
	}
	outW.Close()

	readDone := make(chan struct{})
	go func() {
		buf, _ = readAll(outR)
		close(readDone)
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err = <-waitDone:
	case <-timer.C:
		timedOut = true
		killProcessGroup(cmd)
		err = <-waitDone
	}
	outR.Close()
	<-readDone
	return buf, timedOut, err
}

func readAll(f *os.File) ([]byte, error) {
	var out []byte
	chunk := make([]byte, 32*1024)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			out = append(out, chunk[:n]...)
		}
		if err != nil {
			return out, nil
		}
	}
}

// killProcessGroup sends SIGKILL to the whole process group so a target
// that forked children doesn't leave orphans behind after a timeout.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		cmd.Process.Kill()
		return
	}
	unix.Kill(-pgid, syscall.SIGKILL)
}

// HandleInterrupts stores the first SIGTERM/SIGINT/SIGQUIT into received
// and closes done; a second signal of any kind terminates the process
// immediately, matching the "orderly teardown once, then get out of the
// way" policy in spec §4.7/§5.
func HandleInterrupts(received *int32, done chan<- struct{}) {
	c := make(chan os.Signal, 3)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		sig := <-c
		storeSignal(received, sig)
		close(done)
		<-c
		os.Exit(1)
	}()
}

func storeSignal(received *int32, sig os.Signal) {
	if s, ok := sig.(syscall.Signal); ok {
		atomic.StoreInt32(received, int32(s))
	}
}

// IsExist reports whether name exists on disk.
func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// WriteFileExcl creates name with O_EXCL semantics: it fails with
// os.ErrExist if the file is already present. This is the primitive the
// Input Preparer and Crash Store rely on for uniqueness-by-filesystem.
func WriteFileExcl(name string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		os.Remove(name)
		return werr
	}
	return cerr
}

// ReplaceFile atomically makes dst contain data by writing to a sibling
// temp file and renaming over dst, so concurrent readers never observe a
// torn write.
func ReplaceFile(dst string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(dst), ".tmp."+filepath.Base(dst))
	if err := os.WriteFile(tmp, data, DefaultFilePerm); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// MkdirAll is os.MkdirAll with the package's default directory perm.
func MkdirAll(dir string) error {
	return os.MkdirAll(dir, DefaultDirPerm)
}
