// Copyright (c) 2018, Postgres Professional

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pgflock/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "report role, WAL position and replication lag of every instance",
	Run: func(c *cobra.Command, args []string) {
		e := status.NewEngine(eng, db, hl)
		fmt.Print(status.Report(e.Collect(cm)))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
