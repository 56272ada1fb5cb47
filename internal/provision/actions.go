// Copyright (c) 2018, Postgres Professional

package provision

import (
	"fmt"
	"os"
	"path/filepath"

	"pgflock/internal/fllog"
	"pgflock/internal/meta"
	"pgflock/internal/pg"
)

// Lifecycle actions of the management tool: plain per-node loops over the
// frozen NodeSpec list. Per-node errors are reported and the loop moves on.

func StartAll(ctl pg.Controller, m *meta.ClusterMeta, hl *fllog.Logger) error {
	var failed int
	for _, n := range m.Nodes {
		logFile := ""
		if m.Spec.Logging {
			logFile = filepath.Join(n.DataDir, "startup.log")
		}
		if err := ctl.Start(n.DataDir, logFile); err != nil {
			hl.Errorf("starting %s: %v", n.DisplayName(), err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d instances failed to start", failed, len(m.Nodes))
	}
	return nil
}

func StopAll(ctl pg.Controller, m *meta.ClusterMeta, mode string, hl *fllog.Logger) error {
	var failed int
	// standbys first so the primary never sees a synchronous standby vanish
	// mid-shutdown
	for i := len(m.Nodes) - 1; i >= 0; i-- {
		n := m.Nodes[i]
		if err := ctl.Stop(n.DataDir, mode); err != nil {
			hl.Errorf("stopping %s: %v", n.DisplayName(), err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d instances failed to stop", failed, len(m.Nodes))
	}
	return nil
}

func RestartAll(ctl pg.Controller, m *meta.ClusterMeta, mode string, hl *fllog.Logger) error {
	if err := StopAll(ctl, m, mode, hl); err != nil {
		hl.Warnf("%v", err)
	}
	return StartAll(ctl, m, hl)
}

// Destroy tears the whole cluster down: immediate shutdown, node dirs gone,
// shared archive gone, and finally the management artifact itself. Every
// step is best effort; one failure never blocks the remaining steps.
func Destroy(ctl pg.Controller, m *meta.ClusterMeta, artifactPath string, hl *fllog.Logger) error {
	var errs int
	for i := len(m.Nodes) - 1; i >= 0; i-- {
		n := m.Nodes[i]
		if st := ctl.Probe(n.DataDir); st == pg.StateRunning || st == pg.StateIndeterminate {
			if err := ctl.Stop(n.DataDir, pg.StopImmediate); err != nil {
				hl.Errorf("stopping %s: %v", n.DisplayName(), err)
				errs++
			}
		}
		if err := pg.RemoveTree(n.DataDir); err != nil {
			hl.Errorf("removing %s: %v", n.DataDir, err)
			errs++
		}
	}
	if m.Spec.ArchiveDir != "" {
		if err := os.RemoveAll(m.Spec.ArchiveDir); err != nil {
			hl.Errorf("removing archive dir %s: %v", m.Spec.ArchiveDir, err)
			errs++
		}
	}
	if err := os.Remove(artifactPath); err != nil {
		hl.Errorf("removing management artifact %s: %v", artifactPath, err)
		errs++
	}
	if errs > 0 {
		return fmt.Errorf("destroy finished with %d errors", errs)
	}
	return nil
}
