// Copyright (c) 2018, Postgres Professional

package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// SetFlagsFromEnv fills flags not given on the command line from environment
// variables named <prefix>_<FLAG_NAME>, with dashes turned into underscores.
// Explicit command line arguments always win.
func SetFlagsFromEnv(flags *pflag.FlagSet, prefix string) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}
		envName := prefix + "_" + strings.ToUpper(strings.Replace(f.Name, "-", "_", -1))
		value, ok := os.LookupEnv(envName)
		if !ok {
			return
		}
		if serr := flags.Set(f.Name, value); serr != nil {
			err = fmt.Errorf("invalid value %q of env var %s: %v", value, envName, serr)
		}
	})
	return err
}
