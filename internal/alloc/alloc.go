// Copyright (c) 2018, Postgres Professional

// Best-effort allocation of ports and data dir names. Both are
// check-then-act against external state: a later bind or mkdir may still
// race, which is accepted for a disposable test cluster.
package alloc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"pgflock/internal/cluster"
	"pgflock/internal/fllog"
)

// warn once if the scan drags on
const slowScanNotice = 3 * time.Second

// Ports returns count ports unbound at the moment of check, lowest first,
// scanned upwards from start. The check is advisory, not a reservation.
func Ports(hl *fllog.Logger, start int, count int) ([]int, error) {
	var ports []int
	began := time.Now()
	noticed := false

	for port := start; len(ports) < count; port++ {
		if port > 65535 {
			return nil, fmt.Errorf("ran out of ports scanning from %d, found %d of %d",
				start, len(ports), count)
		}
		if !noticed && time.Since(began) > slowScanNotice {
			hl.Warnf("still scanning for %d free ports above %d, this may take a while", count, start)
			noticed = true
		}
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		ln.Close()
		ports = append(ports, port)
	}
	return ports, nil
}

// Dirs returns count data dir paths under base following the
// primary, standby1..standbyN naming. A candidate which already exists and
// is non-empty gets a numeric suffix bumped until a free name is found; the
// search space is unbounded, so this never fails.
func Dirs(base string, count int) []string {
	var dirs []string
	for i := 0; i < count; i++ {
		name := "primary"
		if i > 0 {
			name = fmt.Sprintf("standby%d", i)
		}
		dirs = append(dirs, freeDir(base, name))
	}
	return dirs
}

func freeDir(base string, name string) string {
	candidate := filepath.Join(base, name)
	for suffix := 2; !dirUsable(candidate); suffix++ {
		candidate = filepath.Join(base, fmt.Sprintf("%s%d", name, suffix))
	}
	return candidate
}

// usable means absent or present but empty
func dirUsable(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return os.IsNotExist(err)
	}
	return len(entries) == 0
}

// Nodes zips allocated ports and dirs into NodeSpecs.
func Nodes(ports []int, dirs []string) []cluster.NodeSpec {
	nodes := make([]cluster.NodeSpec, len(ports))
	for i := range ports {
		nodes[i] = cluster.NodeSpec{Index: i, Port: ports[i], DataDir: dirs[i]}
	}
	return nodes
}
