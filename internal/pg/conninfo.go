// Copyright (c) 2018, Postgres Professional

package pg

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// The status engine parses the subscription directive from the live on-disk
// configuration rather than the frozen metadata, so a promoted or manually
// repointed standby is reported against its actual upstream.

var primaryConninfoRegexp = regexp.MustCompile(`(?m)^\s*primary_conninfo\s*=\s*'([^']*)'`)
var conninfoPortRegexp = regexp.MustCompile(`(^|\s)port=(\d+)`)

// candidate files carrying primary_conninfo, newest convention first
var conninfoFiles = []string{"pgflock.conf", "postgresql.auto.conf", "recovery.conf"}

// UpstreamPort extracts the upstream's port from the node's own subscription
// directive on disk.
func UpstreamPort(dataDir string) (int, error) {
	for _, name := range conninfoFiles {
		data, err := os.ReadFile(filepath.Join(dataDir, name))
		if err != nil {
			continue
		}
		m := primaryConninfoRegexp.FindSubmatch(data)
		if m == nil {
			continue
		}
		pm := conninfoPortRegexp.FindStringSubmatch(string(m[1]))
		if pm == nil {
			return 0, fmt.Errorf("primary_conninfo in %s names no port", name)
		}
		port, err := strconv.Atoi(pm[2])
		if err != nil {
			return 0, err
		}
		return port, nil
	}
	return 0, fmt.Errorf("no subscription directive found under %s", dataDir)
}
