// Package procinfo resolves the process that owns a listening TCP port.
// Resolution is best effort: it shells out to lsof and enriches the
// result from /proc where the platform provides it. Callers must treat
// ErrUnavailable as a normal outcome, not a failure.
package procinfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when the platform or permissions prevent
// resolving the owning process for a port. It is the structural
// "unavailable" variant every consumer has to handle.
var ErrUnavailable = errors.New("procinfo: process resolution unavailable")

// ProcessInfo describes the process bound to a port. CommandLine and
// WorkingDir may be empty when /proc is not readable.
type ProcessInfo struct {
	PID         int
	Name        string
	CommandLine string
	WorkingDir  string
}

// Resolver looks up the process behind a listening port.
type Resolver interface {
	Resolve(ctx context.Context, port int) (ProcessInfo, error)
}

// LsofResolver resolves via the lsof utility plus /proc.
type LsofResolver struct {
	logger *zap.Logger
}

// NewLsofResolver creates an LsofResolver. logger may be nil.
func NewLsofResolver(logger *zap.Logger) *LsofResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LsofResolver{logger: logger}
}

// Available reports whether lsof exists on PATH.
func (r *LsofResolver) Available() bool {
	_, err := exec.LookPath("lsof")
	return err == nil
}

// Resolve finds the listening process on port. Returns ErrUnavailable
// when lsof is missing, errors, or reports nothing.
func (r *LsofResolver) Resolve(ctx context.Context, port int) (ProcessInfo, error) {
	cmd := exec.CommandContext(ctx, "lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN")
	out, err := cmd.Output()
	if err != nil {
		r.logger.Debug("lsof lookup failed", zap.Int("port", port), zap.Error(err))
		return ProcessInfo{}, ErrUnavailable
	}

	info, ok := parseLsofOutput(string(out))
	if !ok {
		return ProcessInfo{}, ErrUnavailable
	}

	enrichFromProc(&info)
	return info, nil
}

// parseLsofOutput extracts name and PID from the first LISTEN line of
// lsof tabular output (header line is skipped).
func parseLsofOutput(out string) (ProcessInfo, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] == "COMMAND" {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		return ProcessInfo{Name: fields[0], PID: pid}, true
	}
	return ProcessInfo{}, false
}

// enrichFromProc fills command line and working directory from /proc.
// Silently leaves fields empty on platforms without /proc.
func enrichFromProc(info *ProcessInfo) {
	procDir := fmt.Sprintf("/proc/%d", info.PID)

	if raw, err := os.ReadFile(procDir + "/cmdline"); err == nil && len(raw) > 0 {
		info.CommandLine = strings.TrimRight(strings.ReplaceAll(string(raw), "\x00", " "), " ")
	}
	if cwd, err := os.Readlink(procDir + "/cwd"); err == nil {
		info.WorkingDir = cwd
	}
	if info.Name == "" {
		if comm, err := os.ReadFile(procDir + "/comm"); err == nil {
			info.Name = strings.TrimSpace(string(comm))
		}
	}
}

// NopResolver always reports unavailability. It stands in on platforms
// where no lookup mechanism exists and in tests.
type NopResolver struct{}

// Resolve implements Resolver.
func (NopResolver) Resolve(context.Context, int) (ProcessInfo, error) {
	return ProcessInfo{}, ErrUnavailable
}
