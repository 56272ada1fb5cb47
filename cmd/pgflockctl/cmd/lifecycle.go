// Copyright (c) 2018, Postgres Professional

package cmd

import (
	"github.com/spf13/cobra"

	"pgflock/internal/provision"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start every instance",
	Run: func(c *cobra.Command, args []string) {
		if err := provision.StartAll(eng, cm, hl); err != nil {
			hl.Fatalf("%v", err)
		}
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stop every instance with the chosen shutdown mode",
	Run: func(c *cobra.Command, args []string) {
		if err := provision.StopAll(eng, cm, stopMode, hl); err != nil {
			hl.Fatalf("%v", err)
		}
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "stop and start every instance",
	Run: func(c *cobra.Command, args []string) {
		if err := provision.RestartAll(eng, cm, stopMode, hl); err != nil {
			hl.Fatalf("%v", err)
		}
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "stop everything and remove all node dirs, the archive dir and this tool itself",
	Run: func(c *cobra.Command, args []string) {
		if err := provision.Destroy(eng, cm, clusterFile, hl); err != nil {
			hl.Fatalf("%v", err)
		}
		hl.Infof("cluster destroyed, nothing left behind")
	},
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, destroyCmd)
}
