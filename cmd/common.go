// Copyright (c) 2018, Postgres Professional

package cmd

import (
	"github.com/spf13/cobra"
)

// set in Makefile
var PgflockVersion = "not defined during build"

func AddLoggingFlags(cmd *cobra.Command, logLevel *string, logFile *string) {
	cmd.PersistentFlags().StringVar(logLevel, "log-level", "info",
		"error|warn|info|debug")
	if logFile != nil {
		cmd.PersistentFlags().StringVar(logFile, "log-file", "",
			"redirect log output to this file instead of stderr")
	}
}
