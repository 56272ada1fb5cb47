// Copyright (c) 2018, Postgres Professional

package meta

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgflock/internal/cluster"
	"pgflock/internal/topology"
)

func testMeta(t *testing.T) *ClusterMeta {
	plan, err := topology.PlanCluster(2, cluster.TopologyTree)
	require.NoError(t, err)
	return &ClusterMeta{
		FormatVersion: cluster.CurrentFormatVersion,
		Spec: cluster.ClusterSpec{
			Replicas:   2,
			Topology:   cluster.TopologyTree,
			ArchiveDir: "/tmp/arch",
			BasePort:   5432,
			BaseDir:    "/tmp",
			ReplUser:   "replicator",
		},
		Nodes: []cluster.NodeSpec{
			{Index: 0, Port: 5432, DataDir: "/tmp/primary"},
			{Index: 1, Port: 5433, DataDir: "/tmp/standby1"},
			{Index: 2, Port: 5434, DataDir: "/tmp/standby2"},
		},
		Plan: plan,
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	m := testMeta(t)
	path := filepath.Join(t.TempDir(), ArtifactName)
	require.NoError(t, WriteArtifact(path, m, "/usr/local/bin/pgflockctl"))

	got, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestArtifactIsExecutableShim(t *testing.T) {
	path := filepath.Join(t.TempDir(), ArtifactName)
	require.NoError(t, WriteArtifact(path, testMeta(t), "pgflockctl"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111, "artifact must be executable")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "#!/bin/sh\n"))
	assert.Contains(t, text, `exec pgflockctl --cluster-file "$0" "$@"`)
	// everything after the exec is shell comments, never executed code
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n")[1:] {
		if strings.HasPrefix(line, "exec ") {
			continue
		}
		assert.True(t, line == "" || strings.HasPrefix(line, "#"), "stray shell line %q", line)
	}
}

func TestReadArtifactRejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notours")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0755))
	_, err := ReadArtifact(path)
	assert.Error(t, err)
}

func TestReadArtifactRejectsWrongFormatVersion(t *testing.T) {
	m := testMeta(t)
	m.FormatVersion = 99
	path := filepath.Join(t.TempDir(), ArtifactName)
	require.NoError(t, WriteArtifact(path, m, "pgflockctl"))
	_, err := ReadArtifact(path)
	assert.Error(t, err)
}

// the tool is rerun many times against the same artifact; reading must not
// perturb it
func TestReadArtifactIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ArtifactName)
	require.NoError(t, WriteArtifact(path, testMeta(t), "pgflockctl"))

	first, err := ReadArtifact(path)
	require.NoError(t, err)
	second, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
