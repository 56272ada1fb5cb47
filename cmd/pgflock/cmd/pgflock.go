// Copyright (c) 2018, Postgres Professional

package cmd

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	cmdcommon "pgflock/cmd"
	"pgflock/internal/alloc"
	"pgflock/internal/cluster"
	"pgflock/internal/fllog"
	"pgflock/internal/meta"
	"pgflock/internal/pg"
	"pgflock/internal/provision"
	"pgflock/internal/topology"
	"pgflock/internal/utils"
)

// Here we will store args
var spec cluster.ClusterSpec
var topologyRaw string
var logLevel string

var hl *fllog.Logger

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "pgflock",
	Version: cmdcommon.PgflockVersion,
	Short:   "provision a disposable replication cluster: one primary plus N standbys in a fan, tree or chain",
	PersistentPreRun: func(c *cobra.Command, args []string) {
		hl = fllog.GetLoggerWithLevel(logLevel)

		var err error
		if spec.Topology, err = cluster.ParseTopology(topologyRaw); err != nil {
			hl.Fatalf("%v", err)
		}
		cluster.AdjustSpecDefaults(&spec)
		if err := cluster.ValidateSpec(&spec); err != nil {
			hl.Fatalf("%v", err)
		}
	},
	Run: pgflockMain,
}

// Entry point
func Execute() {
	if err := utils.SetFlagsFromEnv(rootCmd.PersistentFlags(), "PGFLOCK"); err != nil {
		log.Fatalf("%v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

// Executed on package init
func init() {
	rootCmd.PersistentFlags().IntVarP(&spec.Replicas, "replicas", "n", 2,
		"number of standby replicas, >= 0")
	rootCmd.PersistentFlags().StringVarP(&topologyRaw, "topology", "t", "fan",
		"replication topology: fan|tree|chain")
	rootCmd.PersistentFlags().BoolVar(&spec.Synchronous, "sync", false,
		"synchronous replication to every standby")
	rootCmd.PersistentFlags().StringVar(&spec.ArchiveDir, "archive-dir", "",
		"shared WAL archive directory; empty disables archiving")
	rootCmd.PersistentFlags().BoolVar(&spec.Logging, "log-startup", false,
		"collect instance logs in each data dir")
	rootCmd.PersistentFlags().StringVar(&spec.BinDir, "bin-dir", "",
		"directory with engine binaries; empty means PATH")
	rootCmd.PersistentFlags().IntVar(&spec.BasePort, "base-port", 5432,
		"port scan starts here")
	rootCmd.PersistentFlags().StringVar(&spec.BaseDir, "base-dir", ".",
		"node data dirs and the management artifact are created under this dir")
	rootCmd.PersistentFlags().StringVar(&spec.SuperUser, "su-user", "",
		"superuser for point queries; empty means the libpq default")
	rootCmd.PersistentFlags().StringVar(&spec.ReplUser, "repl-user", "replicator",
		"dedicated replication role to create")
	cmdcommon.AddLoggingFlags(rootCmd, &logLevel, nil)
}

func pgflockMain(c *cobra.Command, args []string) {
	eng := &pg.Engine{BinDir: spec.BinDir}

	version, err := eng.Version()
	if err != nil {
		hl.Fatalf("cannot determine engine version: %v", err)
	}
	if err := topology.Supported(spec.Topology, version); err != nil {
		hl.Fatalf("%v", err)
	}

	ports, err := alloc.Ports(hl, spec.BasePort, spec.Replicas+1)
	if err != nil {
		hl.Fatalf("%v", err)
	}
	dirs := alloc.Dirs(spec.BaseDir, spec.Replicas+1)
	nodes := alloc.Nodes(ports, dirs)
	if err := cluster.ValidateNodes(&spec, nodes); err != nil {
		hl.Fatalf("%v", err)
	}

	plan, err := topology.PlanCluster(spec.Replicas, spec.Topology)
	if err != nil {
		hl.Fatalf("%v", err)
	}
	fmt.Print(plan.Render(nodes))

	db := &pg.LiveQuerier{User: spec.SuperUser}
	p := provision.New(eng, db, &spec, nodes, plan, version, hl)
	if err := p.Run(); err != nil {
		hl.Fatalf("%v", err)
	}
	for _, i := range p.Skipped() {
		hl.Warnf("%s was skipped after a clone failure", nodes[i].Name())
	}

	m := &meta.ClusterMeta{
		FormatVersion: cluster.CurrentFormatVersion,
		Spec:          spec,
		Nodes:         nodes,
		Plan:          plan,
	}
	artifact := filepath.Join(spec.BaseDir, meta.ArtifactName)
	if err := meta.WriteArtifact(artifact, m, meta.LocateCtl()); err != nil {
		hl.Fatalf("cannot write management artifact: %v", err)
	}

	hl.Infof("cluster is up; manage it with %s {status|start|stop|restart|destroy}", artifact)
}
