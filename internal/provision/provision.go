// Copyright (c) 2018, Postgres Professional

// Instance lifecycle: creation of the primary, cloning of standbys, startup
// of every node. Strictly sequential in ascending index order; later nodes
// depend on earlier ones being in a stable state.
package provision

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/davecgh/go-spew/spew"

	"pgflock/internal/cluster"
	"pgflock/internal/fllog"
	"pgflock/internal/pg"
	"pgflock/internal/pgconf"
	"pgflock/internal/topology"
)

// one retry by default
const startRetryBudget = 1

// package vars so tests don't have to sit through real delays
var (
	startSettleDelay = time.Second
	reprobeDelay     = 2 * time.Second
)

type Provisioner struct {
	Ctl   pg.Controller
	DB    pg.Querier
	Spec  *cluster.ClusterSpec
	Nodes []cluster.NodeSpec
	Plan  *topology.Plan

	hl      *fllog.Logger
	version int
	// standby indices skipped after clone failures
	skipped map[int]bool
}

func New(ctl pg.Controller, db pg.Querier, spec *cluster.ClusterSpec,
	nodes []cluster.NodeSpec, plan *topology.Plan, version int, hl *fllog.Logger) *Provisioner {
	return &Provisioner{
		Ctl: ctl, DB: db, Spec: spec, Nodes: nodes, Plan: plan,
		hl: hl, version: version, skipped: map[int]bool{},
	}
}

// Run drives the whole provisioning: primary first, then each standby is
// cloned and configured, then every surviving standby is started. A clone
// failure skips that one node; a startup failure past the retry budget is
// fatal for the run.
func (p *Provisioner) Run() error {
	p.hl.Debugf("provisioning plan: %v", spew.Sdump(p.Plan))
	p.hl.Debugf("node specs: %v", spew.Sdump(p.Nodes))

	if p.Spec.ArchiveDir != "" {
		if err := os.MkdirAll(p.Spec.ArchiveDir, 0755); err != nil {
			return fmt.Errorf("cannot create archive dir: %v", err)
		}
	}

	template, err := p.createPrimary()
	if err != nil {
		return err
	}

	// clone phase: standby1 from the running primary, the rest by copying
	// standby1's dir while it has not yet started (and so not diverged)
	for i := 1; i <= p.Spec.Replicas; i++ {
		if err := p.cloneStandby(i, template); err != nil {
			p.hl.Errorf("cloning %s failed, skipping this node: %v", p.Nodes[i].Name(), err)
			p.skipped[i] = true
		}
	}

	for i := 1; i <= p.Spec.Replicas; i++ {
		if p.skipped[i] {
			continue
		}
		if err := p.startNode(p.Nodes[i]); err != nil {
			return err
		}
		p.hl.Infof("%s is up on port %d", p.Nodes[i].Name(), p.Nodes[i].Port)
	}

	return nil
}

// Skipped reports the standby indices lost to clone failures.
func (p *Provisioner) Skipped() []int {
	var s []int
	for i := 1; i <= p.Spec.Replicas; i++ {
		if p.skipped[i] {
			s = append(s, i)
		}
	}
	return s
}

// createPrimary initializes, configures and starts node 0 and creates the
// replication role. It returns the template settings snapshotted before any
// primary-only key was added; standbys are configured from that snapshot.
func (p *Provisioner) createPrimary() (*pgconf.Settings, error) {
	primary := p.Nodes[0]
	p.hl.Infof("initializing %s in %s", primary.Name(), primary.DataDir)

	if err := p.Ctl.InitDB(primary.DataDir); err != nil {
		return nil, err
	}

	maxConns := pgconf.MaxConnections(p.Plan)
	settings := pgconf.NodeSettings(primary, p.Plan, p.Spec, maxConns, p.version)
	// the snapshot must happen here: cloned standbys start from a
	// pre-primary-specific template
	template := settings.Clone()

	pgconf.ApplyPrimaryExtras(settings, p.Spec, p.Nodes)
	if err := pgconf.WriteNodeConfig(primary.DataDir, settings); err != nil {
		return nil, err
	}
	if err := pgconf.AppendHBA(primary.DataDir, pgconf.HBARules(p.Spec.ReplUser)); err != nil {
		return nil, err
	}

	if err := p.startNode(primary); err != nil {
		return nil, err
	}
	p.hl.Infof("%s is up on port %d", primary.Name(), primary.Port)

	if err := p.DB.CreateReplicationRole(primary.Port, p.Spec.ReplUser); err != nil {
		return nil, fmt.Errorf("cannot create replication role: %v", err)
	}

	return template, nil
}

func (p *Provisioner) cloneStandby(i int, template *pgconf.Settings) error {
	node := p.Nodes[i]

	if i == 1 {
		p.hl.Infof("cloning %s from the primary", node.Name())
		if err := p.Ctl.BaseBackup(node.DataDir, p.Nodes[0].Port, p.Spec.ReplUser); err != nil {
			return err
		}
	} else {
		// standby1 has not started yet, its dir is a faithful base copy
		src := p.Nodes[1].DataDir
		if p.skipped[1] {
			return fmt.Errorf("standby1 was skipped, no source dir to copy")
		}
		p.hl.Infof("cloning %s by copying %s", node.Name(), src)
		if err := copyTree(src, node.DataDir); err != nil {
			return err
		}
	}

	// reconfigure per-node: own port and sender capacity over the template
	settings := template.Clone()
	settings.Set("port", fmt.Sprintf("%d", node.Port))
	settings.Set("max_wal_senders", fmt.Sprintf("%d", p.Plan.Entries[i].MaxWalSenders))
	if err := pgconf.WriteNodeConfig(node.DataDir, settings); err != nil {
		return err
	}

	upstream := p.Nodes[p.Plan.Entries[i].Upstream]
	sub := pgconf.SubscriptionSettings(node, upstream, p.Spec, p.version)
	// a fresh clone may carry the old subscription file; ours must win
	_ = os.Remove(filepath.Join(node.DataDir, pgconf.RecoveryConfName))
	return pgconf.WriteSubscription(node.DataDir, sub, p.version)
}

// startNode starts the instance and verifies liveness: wait for the start to
// settle, probe, and on failure re-probe once before spending a retry. An
// exhausted budget is fatal for the whole run.
func (p *Provisioner) startNode(node cluster.NodeSpec) error {
	logFile := ""
	if p.Spec.Logging {
		logFile = filepath.Join(node.DataDir, "startup.log")
	}

	for attempt := 0; ; attempt++ {
		if err := p.Ctl.Start(node.DataDir, logFile); err != nil {
			p.hl.Warnf("start attempt %d of %s: %v", attempt+1, node.Name(), err)
		}
		time.Sleep(startSettleDelay)

		if p.Ctl.Probe(node.DataDir) == pg.StateRunning {
			return nil
		}
		// wait briefly and re-probe once before spending the budget
		time.Sleep(reprobeDelay)
		if p.Ctl.Probe(node.DataDir) == pg.StateRunning {
			return nil
		}
		if attempt >= startRetryBudget {
			return fmt.Errorf("instance %s (port %d) failed to start after %d attempts",
				node.Name(), node.Port, attempt+1)
		}
		p.hl.Warnf("%s not running, retrying start", node.Name())
	}
}

// skip transient runtime files when copying a cloned dir
var copySkip = map[string]bool{
	"postmaster.pid":  true,
	"postmaster.opts": true,
}

func copyTree(src string, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if copySkip[rel] {
			return nil
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		if !info.Mode().IsRegular() {
			// sockets and the like have no business in a base copy
			return nil
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src string, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
