// Copyright (c) 2018, Postgres Professional

package cluster

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	CurrentFormatVersion = 1
)

type Topology int

const (
	TopologyFan Topology = iota
	TopologyTree
	TopologyChain
)

func ParseTopology(s string) (Topology, error) {
	switch s {
	case "fan":
		return TopologyFan, nil
	case "tree":
		return TopologyTree, nil
	case "chain":
		return TopologyChain, nil
	}
	return 0, fmt.Errorf("unknown topology %q, expected fan|tree|chain", s)
}

func (t Topology) String() string {
	switch t {
	case TopologyFan:
		return "fan"
	case TopologyTree:
		return "tree"
	case TopologyChain:
		return "chain"
	}
	return fmt.Sprintf("topology(%d)", int(t))
}

func (t Topology) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Topology) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("topology must be a json string, got %s", s)
	}
	parsed, err := ParseTopology(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Everything the provisioner needs to know about the cluster to build;
// immutable once instance creation begins.
type ClusterSpec struct {
	Replicas    int      `json:"replicas"`
	Topology    Topology `json:"topology"`
	Synchronous bool     `json:"synchronous"`
	// shared WAL archive location; empty means no archiving
	ArchiveDir string `json:"archive_dir,omitempty"`
	Logging    bool   `json:"logging"`

	// where engine binaries live; empty means PATH
	BinDir string `json:"bin_dir,omitempty"`
	// port scan starts here
	BasePort int `json:"base_port"`
	// node data dirs are created under this dir
	BaseDir string `json:"base_dir"`

	SuperUser string `json:"super_user,omitempty"`
	ReplUser  string `json:"repl_user"`
}

// One engine instance. Index 0 is the primary.
type NodeSpec struct {
	Index   int    `json:"index"`
	Port    int    `json:"port"`
	DataDir string `json:"data_dir"`
}

// Name is the stable per-node name used as application_name in subscription
// directives and in the synchronous standby list. The data dir basename may
// differ when the allocator had to suffix a colliding candidate.
func (n NodeSpec) Name() string {
	if n.Index == 0 {
		return "primary"
	}
	return fmt.Sprintf("standby%d", n.Index)
}

// DisplayName is what reports show: the actual directory name.
func (n NodeSpec) DisplayName() string {
	return filepath.Base(n.DataDir)
}

func (n NodeSpec) IsPrimary() bool {
	return n.Index == 0
}

func AdjustSpecDefaults(spec *ClusterSpec) {
	if spec.BasePort == 0 {
		spec.BasePort = 5432
	}
	if spec.BaseDir == "" {
		spec.BaseDir = "."
	}
	if spec.ReplUser == "" {
		spec.ReplUser = "replicator"
	}
}

func ValidateSpec(spec *ClusterSpec) error {
	if spec.Replicas < 0 {
		return fmt.Errorf("replica count must be >= 0, got %d", spec.Replicas)
	}
	switch spec.Topology {
	case TopologyFan, TopologyTree, TopologyChain:
	default:
		return fmt.Errorf("unknown topology %v", spec.Topology)
	}
	if spec.BasePort < 1 || spec.BasePort > 65535 {
		return fmt.Errorf("base port %d out of range", spec.BasePort)
	}
	if spec.ReplUser == "" {
		return fmt.Errorf("replication role name required")
	}
	return nil
}

// ValidateNodes checks the NodeSpec invariants: one node per replica plus the
// primary, pairwise distinct ports, pairwise distinct data dirs which are
// absent or empty at this point.
func ValidateNodes(spec *ClusterSpec, nodes []NodeSpec) error {
	if len(nodes) != spec.Replicas+1 {
		return fmt.Errorf("want %d nodes, got %d", spec.Replicas+1, len(nodes))
	}
	ports := map[int]bool{}
	dirs := map[string]bool{}
	for _, n := range nodes {
		if ports[n.Port] {
			return fmt.Errorf("port %d allocated twice", n.Port)
		}
		ports[n.Port] = true
		if dirs[n.DataDir] {
			return fmt.Errorf("data dir %s allocated twice", n.DataDir)
		}
		dirs[n.DataDir] = true

		entries, err := os.ReadDir(n.DataDir)
		if err == nil && len(entries) > 0 {
			return fmt.Errorf("data dir %s exists and is not empty", n.DataDir)
		}
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cannot check data dir %s: %v", n.DataDir, err)
		}
	}
	return nil
}
