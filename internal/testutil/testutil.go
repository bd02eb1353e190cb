// Package testutil provides testing utilities for tosh tests: system program
// checks, scratch descriptors, and /proc inspection of spawned children.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// SkipIfNoProgram skips the test unless every named program is in PATH.
func SkipIfNoProgram(t *testing.T, names ...string) {
	t.Helper()

	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not found in PATH, skipping test", name)
		}
	}
}

// SkipIfNoProc skips the test when /proc is not mounted.
func SkipIfNoProc(t *testing.T) {
	t.Helper()

	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("/proc not available, skipping test")
	}
}

// DevNull opens the null device for reading and writing. It is closed when
// the test completes.
func DevNull(t *testing.T) *os.File {
	t.Helper()

	f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("failed to open %s: %v", os.DevNull, err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// TempOutput creates a scratch file children can write to. It is closed when
// the test completes.
func TempOutput(t *testing.T, name string) *os.File {
	t.Helper()

	f, err := os.Create(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// ReadOutput returns everything written to f so far.
func ReadOutput(t *testing.T, f *os.File) string {
	t.Helper()

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("failed to read %s: %v", f.Name(), err)
	}
	return string(data)
}

// OpenFDs returns the number of descriptors the test process holds.
func OpenFDs(t *testing.T) int {
	t.Helper()

	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Fatalf("failed to list descriptors: %v", err)
	}
	return len(entries)
}

// StartChild runs script under sh with stdin and stdout on the null device
// and returns its pid. A child still alive when the test completes is
// killed.
func StartChild(t *testing.T, script string) int {
	t.Helper()

	SkipIfNoProgram(t, "sh")
	sh, _ := exec.LookPath("sh")
	devNull := DevNull(t)

	pid, err := syscall.ForkExec(sh, []string{"sh", "-c", script}, &syscall.ProcAttr{
		Env:   os.Environ(),
		Files: []uintptr{devNull.Fd(), devNull.Fd(), os.Stderr.Fd()},
	})
	if err != nil {
		t.Fatalf("failed to start child: %v", err)
	}
	t.Cleanup(func() { KillAndReap(pid) })
	return pid
}

// KillAndReap kills pid and collects it if it is still our child.
func KillAndReap(pid int) {
	_ = unix.Kill(pid, unix.SIGKILL)
	var ws unix.WaitStatus
	_, _ = unix.Wait4(pid, &ws, unix.WNOHANG, nil)
}

// WaitForExec polls until pid has left the stage launcher, i.e. it no
// longer runs the same executable as the test process.
func WaitForExec(t *testing.T, pid int) {
	t.Helper()

	self, err := os.Readlink("/proc/self/exe")
	if err != nil {
		t.Fatalf("failed to resolve own executable: %v", err)
	}
	path := "/proc/" + strconv.Itoa(pid) + "/exe"
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if exe, err := os.Readlink(path); err == nil && exe != self {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pid %d did not exec its program in time", pid)
}

// SignalMask returns a signal bitmask field of /proc/<pid>/status, such as
// "SigIgn" or "SigCgt". Bit n-1 stands for signal n.
func SignalMask(t *testing.T, pid int, field string) uint64 {
	t.Helper()

	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		t.Fatalf("failed to read status of %d: %v", pid, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		value, ok := strings.CutPrefix(line, field+":")
		if !ok {
			continue
		}
		mask, err := strconv.ParseUint(strings.TrimSpace(value), 16, 64)
		if err != nil {
			t.Fatalf("failed to parse %s %q: %v", field, value, err)
		}
		return mask
	}
	t.Fatalf("%s not found in status of %d", field, pid)
	return 0
}

// HasFD reports whether pid has descriptor fd open.
func HasFD(pid, fd int) bool {
	_, err := os.Readlink("/proc/" + strconv.Itoa(pid) + "/fd/" + strconv.Itoa(fd))
	return err == nil
}
