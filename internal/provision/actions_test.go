// Copyright (c) 2018, Postgres Professional

package provision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgflock/internal/cluster"
	"pgflock/internal/meta"
	"pgflock/internal/pg"
)

func provisionedCluster(t *testing.T, replicas int, archive bool) (*fakeEngine, *meta.ClusterMeta, string) {
	spec, nodes, plan := testCluster(t, replicas, cluster.TopologyFan)
	if archive {
		spec.ArchiveDir = filepath.Join(spec.BaseDir, "wal_archive")
	}
	eng := newFakeEngine()
	p := New(eng, &fakeDB{}, spec, nodes, plan, 160000, testLog)
	require.NoError(t, p.Run())

	m := &meta.ClusterMeta{
		FormatVersion: cluster.CurrentFormatVersion,
		Spec:          *spec,
		Nodes:         nodes,
		Plan:          plan,
	}
	artifact := filepath.Join(spec.BaseDir, meta.ArtifactName)
	require.NoError(t, meta.WriteArtifact(artifact, m, "pgflockctl"))
	return eng, m, artifact
}

func TestStopAllUsesChosenMode(t *testing.T) {
	eng, m, _ := provisionedCluster(t, 2, false)

	require.NoError(t, StopAll(eng, m, pg.StopSmart, testLog))
	require.Len(t, eng.stopModes, 3)
	for _, mode := range eng.stopModes {
		assert.Equal(t, pg.StopSmart, mode)
	}
	for _, n := range m.Nodes {
		assert.False(t, eng.running[n.DataDir])
	}
}

func TestStartAllAfterStop(t *testing.T) {
	eng, m, _ := provisionedCluster(t, 2, false)
	require.NoError(t, StopAll(eng, m, pg.StopFast, testLog))

	require.NoError(t, StartAll(eng, m, testLog))
	for _, n := range m.Nodes {
		assert.True(t, eng.running[n.DataDir])
	}
}

func TestRestartAll(t *testing.T) {
	eng, m, _ := provisionedCluster(t, 1, false)
	require.NoError(t, RestartAll(eng, m, pg.StopFast, testLog))
	for _, n := range m.Nodes {
		assert.True(t, eng.running[n.DataDir])
	}
}

// destroy must leave no residue: node dirs, archive dir and the artifact
// itself all gone
func TestDestroyLeavesNothing(t *testing.T) {
	eng, m, artifact := provisionedCluster(t, 2, true)

	require.NoError(t, Destroy(eng, m, artifact, testLog))

	for _, n := range m.Nodes {
		_, err := os.Stat(n.DataDir)
		assert.True(t, os.IsNotExist(err), "%s left behind", n.DataDir)
	}
	_, err := os.Stat(m.Spec.ArchiveDir)
	assert.True(t, os.IsNotExist(err), "archive dir left behind")
	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err), "management artifact left behind")

	// running nodes were stopped immediately, not politely
	for _, mode := range eng.stopModes {
		assert.Equal(t, pg.StopImmediate, mode)
	}
	assert.NotEmpty(t, eng.stopModes)
}

// a half-broken cluster still gets cleaned up as far as possible
func TestDestroyBestEffort(t *testing.T) {
	eng, m, artifact := provisionedCluster(t, 1, false)

	// artifact already gone: reported, but node dirs are still removed
	require.NoError(t, os.Remove(artifact))
	err := Destroy(eng, m, artifact, testLog)
	assert.Error(t, err)
	for _, n := range m.Nodes {
		_, serr := os.Stat(n.DataDir)
		assert.True(t, os.IsNotExist(serr))
	}
}
