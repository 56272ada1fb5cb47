// Copyright (c) 2018, Postgres Professional

// Config synthesis: typed settings maps computed once per node from the
// topology plan, serialized at the end. Keeping settings as values until
// serialization is what lets the standby template be snapshotted before any
// primary-only key is added.
package pgconf

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"pgflock/internal/cluster"
	"pgflock/internal/pg"
	"pgflock/internal/topology"
)

const (
	// engine default; the cluster never sizes below it
	minMaxConnections = 100
	// connections reserved for superuser sessions, cloning tools and slack
	reservedConnections = 10

	// synthesized settings live here, pulled into postgresql.conf by an
	// include directive
	CustomConfName    = "pgflock.conf"
	RecoveryConfName  = "recovery.conf"
	StandbySignalName = "standby.signal"

	// engine versions from 12 on take standby settings from the ordinary
	// configuration plus a standby.signal marker file
	signalFileVersion = 120000
)

// Settings is an ordered key/value map; insertion order is kept so the
// serialized file is stable and reviewable.
type Settings struct {
	keys   []string
	values map[string]string
}

func NewSettings() *Settings {
	return &Settings{values: map[string]string{}}
}

func (s *Settings) Set(key string, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (s *Settings) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Clone snapshots the settings as a value; the standby template is taken
// this way before primary-only keys are appended.
func (s *Settings) Clone() *Settings {
	c := NewSettings()
	for _, k := range s.keys {
		c.Set(k, s.values[k])
	}
	return c
}

var bareValueRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Serialize renders the settings in engine configuration syntax.
func (s *Settings) Serialize() string {
	var b strings.Builder
	for _, k := range s.keys {
		v := s.values[k]
		if !bareValueRegexp.MatchString(v) {
			v = "'" + strings.Replace(v, "'", "''", -1) + "'"
		}
		fmt.Fprintf(&b, "%s = %s\n", k, v)
	}
	return b.String()
}

// MaxConnections is computed once from the global plan and applied
// identically to every node; mismatched values between a primary and its
// standbys break replication startup.
func MaxConnections(plan *topology.Plan) int {
	return plan.WalSendersCeiling() + reservedConnections + minMaxConnections
}

// NodeSettings synthesizes the core settings for one node. maxConns must be
// the cluster-wide MaxConnections value.
func NodeSettings(node cluster.NodeSpec, plan *topology.Plan, spec *cluster.ClusterSpec,
	maxConns int, version int) *Settings {
	s := NewSettings()
	s.Set("port", strconv.Itoa(node.Port))
	if version >= 90600 {
		s.Set("wal_level", "replica")
	} else {
		s.Set("wal_level", "hot_standby")
	}
	s.Set("max_wal_senders", strconv.Itoa(plan.Entries[node.Index].MaxWalSenders))
	s.Set("max_connections", strconv.Itoa(maxConns))
	s.Set("hot_standby", "on")
	if spec.Logging {
		s.Set("logging_collector", "on")
	}
	if spec.ArchiveDir != "" {
		s.Set("archive_mode", "on")
		s.Set("archive_command", fmt.Sprintf("cp %%p %s/%%f", spec.ArchiveDir))
	}
	return s
}

// ApplyPrimaryExtras appends the primary-only keys. Never call this on a
// settings value a standby will be cloned from.
func ApplyPrimaryExtras(s *Settings, spec *cluster.ClusterSpec, nodes []cluster.NodeSpec) {
	if !spec.Synchronous || spec.Replicas == 0 {
		return
	}
	// every standby is named so any later promotion keeps the same
	// durability contract
	names := make([]string, 0, spec.Replicas)
	for _, n := range nodes {
		if !n.IsPrimary() {
			names = append(names, n.Name())
		}
	}
	s.Set("synchronous_standby_names", strings.Join(names, ","))
}

// SubscriptionSettings builds the standby-side directives: the subscription
// connstring targets the node's planned upstream, never the primary as such.
func SubscriptionSettings(node cluster.NodeSpec, upstream cluster.NodeSpec,
	spec *cluster.ClusterSpec, version int) *Settings {
	s := NewSettings()
	conninfo := pg.ConnString(map[string]string{
		"host":             "127.0.0.1",
		"port":             strconv.Itoa(upstream.Port),
		"user":             spec.ReplUser,
		"application_name": node.Name(),
	})
	s.Set("primary_conninfo", conninfo)
	if spec.ArchiveDir != "" {
		s.Set("restore_command", fmt.Sprintf("cp %s/%%f %%p", spec.ArchiveDir))
	}
	if version < signalFileVersion {
		s.Set("standby_mode", "on")
	}
	return s
}

// HBARules are emitted once, only on the primary: trust-based local and
// loopback access for the replication role. Fine for a disposable test
// cluster, not for anything else.
func HBARules(replUser string) []string {
	return []string{
		fmt.Sprintf("local replication %s trust", replUser),
		fmt.Sprintf("host replication %s 127.0.0.1/32 trust", replUser),
		fmt.Sprintf("host replication %s ::1/128 trust", replUser),
	}
}

// WriteNodeConfig serializes the settings into the node's custom file and
// makes sure the base file includes it.
func WriteNodeConfig(dataDir string, s *Settings) error {
	custom := filepath.Join(dataDir, CustomConfName)
	if err := os.WriteFile(custom, []byte(s.Serialize()), 0600); err != nil {
		return err
	}
	return ensureInclude(dataDir)
}

func ensureInclude(dataDir string) error {
	base := filepath.Join(dataDir, "postgresql.conf")
	directive := fmt.Sprintf("include '%s'", CustomConfName)

	data, err := os.ReadFile(base)
	if err != nil {
		return fmt.Errorf("cannot read base settings file: %v", err)
	}
	if strings.Contains(string(data), directive) {
		return nil
	}
	f, err := os.OpenFile(base, os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "\n%s\n", directive)
	return err
}

// AppendHBA adds the authentication rules to the node's pg_hba.conf.
func AppendHBA(dataDir string, rules []string) error {
	f, err := os.OpenFile(filepath.Join(dataDir, "pg_hba.conf"),
		os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, r := range rules {
		if _, err := fmt.Fprintln(f, r); err != nil {
			return err
		}
	}
	return nil
}

// WriteSubscription places the standby directives where the engine version
// expects them: recovery.conf before 12, the custom file plus standby.signal
// from 12 on.
func WriteSubscription(dataDir string, sub *Settings, version int) error {
	if version < signalFileVersion {
		return os.WriteFile(filepath.Join(dataDir, RecoveryConfName),
			[]byte(sub.Serialize()), 0600)
	}
	f, err := os.OpenFile(filepath.Join(dataDir, CustomConfName),
		os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(sub.Serialize()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, StandbySignalName), nil, 0600)
}
