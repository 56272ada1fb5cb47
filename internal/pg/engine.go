// Copyright (c) 2018, Postgres Professional

// Interaction with the engine's process control surface: initdb, pg_ctl,
// pg_basebackup. The engine's own replication machinery is opaque to us; we
// only drive processes and read back what they report.
package pg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ProbeState is what a point-in-time process probe can tell us. State is
// never stored, always re-derived.
type ProbeState int

const (
	StateRunning ProbeState = iota
	StateStopped
	StateAbsent
	// probe answered with something ambiguous, e.g. still starting
	StateIndeterminate
)

func (s ProbeState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "offline"
	case StateAbsent:
		return "absent"
	}
	return "starting"
}

// Shutdown modes understood by pg_ctl stop.
const (
	StopSmart     = "smart"
	StopFast      = "fast"
	StopImmediate = "immediate"
)

// Controller is the process control surface consumed from the engine.
type Controller interface {
	InitDB(dataDir string) error
	Start(dataDir string, logFile string) error
	Stop(dataDir string, mode string) error
	Probe(dataDir string) ProbeState
	BaseBackup(targetDir string, srcPort int, replUser string) error
	Version() (int, error)
}

// Engine drives real binaries, from BinDir if set, from PATH otherwise.
type Engine struct {
	BinDir string
}

var _ Controller = (*Engine)(nil)

func (e *Engine) bin(name string) string {
	if e.BinDir == "" {
		return name
	}
	return filepath.Join(e.BinDir, name)
}

func run(cmd *exec.Cmd) error {
	stdoutStderr, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed, stdout/err: %s, err: %s",
			strings.Join(cmd.Args, " "), string(stdoutStderr), err.Error())
	}
	return nil
}

func (e *Engine) InitDB(dataDir string) error {
	return run(exec.Command(e.bin("initdb"), "-D", dataDir))
}

func (e *Engine) Start(dataDir string, logFile string) error {
	args := []string{"-D", dataDir, "-w", "start"}
	if logFile != "" {
		args = append(args, "-l", logFile)
	}
	return run(exec.Command(e.bin("pg_ctl"), args...))
}

func (e *Engine) Stop(dataDir string, mode string) error {
	return run(exec.Command(e.bin("pg_ctl"), "-D", dataDir, "-m", mode, "-w", "stop"))
}

// Probe decodes the pg_ctl status exit code contract: 0 running, 3 stopped,
// 4 no accessible data directory, anything else is ambiguous.
func (e *Engine) Probe(dataDir string) ProbeState {
	err := exec.Command(e.bin("pg_ctl"), "-D", dataDir, "status").Run()
	if err == nil {
		return StateRunning
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		switch ee.ExitCode() {
		case 3:
			return StateStopped
		case 4:
			return StateAbsent
		}
	}
	return StateIndeterminate
}

func (e *Engine) BaseBackup(targetDir string, srcPort int, replUser string) error {
	return run(exec.Command(e.bin("pg_basebackup"),
		"-D", targetDir,
		"-h", "127.0.0.1",
		"-p", strconv.Itoa(srcPort),
		"-U", replUser,
		"-X", "stream"))
}

var versionRegexp = regexp.MustCompile(`(\d+)(?:\.(\d+))?(?:\.\d+)?\s*$`)

// Version probes `postgres --version` and returns the server version number
// in the usual packed form, e.g. 90603 for 9.6.3 and 160000 for 16.x.
func (e *Engine) Version() (int, error) {
	out, err := exec.Command(e.bin("postgres"), "--version").CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("postgres --version failed, stdout/err: %s, err: %s",
			string(out), err.Error())
	}
	return ParseVersion(string(out))
}

func ParseVersion(s string) (int, error) {
	m := versionRegexp.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("cannot parse server version from %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor := 0
	if m[2] != "" {
		minor, _ = strconv.Atoi(m[2])
	}
	if major >= 10 {
		// single-number major versioning
		return major * 10000, nil
	}
	return major*10000 + minor*100, nil
}

// RemoveTree deletes a node's data dir; destroy-time best effort cleanup.
func RemoveTree(dataDir string) error {
	return os.RemoveAll(dataDir)
}
