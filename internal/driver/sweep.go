package driver

import (
	"os"
	"slices"

	"github.com/shirou/gopsutil/v3/process"
)

// runEnvVar tags every spawned worker with the run it belongs to.
const runEnvVar = "LSWORKER_RUN_ID"

// sweepOrphans kills child processes tagged with this run that the driver
// no longer tracks. It returns how many were killed.
func (m *Manager) sweepOrphans() int {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.logger.Debug("orphan sweep skipped", "error", err)
		return 0
	}
	children, err := self.Children()
	if err != nil {
		// gopsutil reports "no children" as an error.
		return 0
	}

	tag := runEnvVar + "=" + m.runID
	killed := 0
	for _, child := range children {
		env, err := child.Environ()
		if err != nil || !slices.Contains(env, tag) {
			continue
		}
		if m.tracksRunning(int(child.Pid)) {
			continue
		}
		if err := child.Kill(); err != nil {
			m.logger.Warn("failed to kill orphaned worker", "pid", child.Pid, "error", err)
			continue
		}
		m.logger.Warn("killed orphaned worker", "pid", child.Pid)
		killed++
	}
	return killed
}

func (m *Manager) tracksRunning(pid int) bool {
	for _, h := range m.Handles() {
		if h.PID() == pid && h.Running() {
			return true
		}
	}
	return false
}
