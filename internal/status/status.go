// Copyright (c) 2018, Postgres Professional

// Status & lag engine of the management tool. Role and health are always
// re-derived from externally observable signals: process probe exit codes
// and point-in-time query results. Nothing here trusts stored state.
package status

import (
	"pgflock/internal/fllog"
	"pgflock/internal/meta"
	"pgflock/internal/pg"
)

type Role int

const (
	RoleUnknown Role = iota
	RolePrimary
	RoleStandby
)

type NodeStatus struct {
	Name  string
	Port  int
	State pg.ProbeState
	Role  Role
	// 0 means none/unknown
	UpstreamPort int
	// empty means unavailable
	WALPosition string
	LagKnown    bool
	LagBytes    int64
}

type Engine struct {
	Ctl pg.Controller
	DB  pg.Querier

	hl *fllog.Logger
}

func NewEngine(ctl pg.Controller, db pg.Querier, hl *fllog.Logger) *Engine {
	return &Engine{Ctl: ctl, DB: db, hl: hl}
}

// Collect probes every node independently; one broken node never hides the
// others.
func (e *Engine) Collect(m *meta.ClusterMeta) []NodeStatus {
	statuses := make([]NodeStatus, 0, len(m.Nodes))
	for _, n := range m.Nodes {
		statuses = append(statuses, e.collectNode(n.DisplayName(), n.Port, n.DataDir))
	}
	return statuses
}

func (e *Engine) collectNode(name string, port int, dataDir string) NodeStatus {
	st := NodeStatus{Name: name, Port: port, State: e.Ctl.Probe(dataDir)}
	if st.State != pg.StateRunning {
		return st
	}

	inRecovery, err := e.DB.InRecovery(port)
	if err != nil {
		// process reports running but queries are not answerable yet
		e.hl.Debugf("%s: recovery probe not answerable: %v", name, err)
		st.State = pg.StateIndeterminate
		return st
	}

	if !inRecovery {
		st.Role = RolePrimary
		if pos, err := e.DB.CurrentWALPosition(port); err == nil {
			st.WALPosition = pos
		} else {
			e.hl.Debugf("%s: no WAL position: %v", name, err)
		}
		return st
	}

	st.Role = RoleStandby
	// the live configuration, not the frozen metadata: promotions and
	// repointed standbys must be reflected
	upstreamPort, err := pg.UpstreamPort(dataDir)
	if err != nil {
		e.hl.Debugf("%s: no upstream known: %v", name, err)
		return st
	}
	st.UpstreamPort = upstreamPort

	local, err := e.DB.ReplayWALPosition(port)
	if err != nil {
		e.hl.Debugf("%s: replay position unavailable: %v", name, err)
		return st
	}
	st.WALPosition = local

	// upstream unreachable: role and status still reported, lag is n/a
	upstream, err := e.DB.CurrentWALPosition(upstreamPort)
	if err != nil {
		e.hl.Debugf("%s: upstream on port %d unreachable: %v", name, upstreamPort, err)
		return st
	}

	lag, err := pg.LagBytes(upstream, local)
	if err != nil {
		e.hl.Debugf("%s: lag not computable: %v", name, err)
		return st
	}
	st.LagKnown = true
	st.LagBytes = lag
	return st
}
