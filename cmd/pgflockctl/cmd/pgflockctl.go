// Copyright (c) 2018, Postgres Professional

package cmd

import (
	"log"

	"github.com/spf13/cobra"

	cmdcommon "pgflock/cmd"
	"pgflock/internal/fllog"
	"pgflock/internal/meta"
	"pgflock/internal/pg"
	"pgflock/internal/utils"
)

// Here we will store args
var clusterFile string
var stopMode string
var logLevel string
var logFile string

var hl *fllog.Logger

// frozen metadata read from the artifact trailer; read-only for every action
var cm *meta.ClusterMeta
var eng *pg.Engine
var db *pg.LiveQuerier

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "pgflockctl",
	Version: cmdcommon.PgflockVersion,
	Short:   "manage a cluster provisioned by pgflock; normally exec'd through the generated artifact",
	PersistentPreRun: func(c *cobra.Command, args []string) {
		hl = fllog.GetLoggerWithLevelTo(logLevel, logFile)

		if clusterFile == "" {
			hl.Fatalf("--cluster-file required (the generated artifact passes itself)")
		}
		switch stopMode {
		case pg.StopSmart, pg.StopFast, pg.StopImmediate:
		default:
			hl.Fatalf("unknown shutdown mode %q, expected smart|fast|immediate", stopMode)
		}

		var err error
		cm, err = meta.ReadArtifact(clusterFile)
		if err != nil {
			hl.Fatalf("%v", err)
		}
		eng = &pg.Engine{BinDir: cm.Spec.BinDir}
		db = &pg.LiveQuerier{User: cm.Spec.SuperUser}
	},
	// bare command does nothing
}

// Entry point
func Execute() {
	if err := utils.SetFlagsFromEnv(rootCmd.PersistentFlags(), "PGFLOCKCTL"); err != nil {
		log.Fatalf("%v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

// Executed on package init
func init() {
	rootCmd.PersistentFlags().StringVar(&clusterFile, "cluster-file", "",
		"generated artifact carrying the frozen cluster metadata")
	rootCmd.PersistentFlags().StringVarP(&stopMode, "mode", "m", pg.StopFast,
		"shutdown mode for stop/restart: smart|fast|immediate")
	cmdcommon.AddLoggingFlags(rootCmd, &logLevel, &logFile)
}
