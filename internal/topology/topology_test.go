// Copyright (c) 2018, Postgres Professional

package topology

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgflock/internal/cluster"
)

func testNodes(count int) []cluster.NodeSpec {
	nodes := make([]cluster.NodeSpec, count)
	for i := range nodes {
		name := "primary"
		if i > 0 {
			name = fmt.Sprintf("standby%d", i)
		}
		nodes[i] = cluster.NodeSpec{Index: i, Port: 5432 + i, DataDir: "/tmp/" + name}
	}
	return nodes
}

// every plan must be a tree rooted at node 0 with exactly replicas non-root
// nodes, and every node must offer at least as many senders as it has
// downstreams
func TestPlanInvariants(t *testing.T) {
	kinds := []cluster.Topology{cluster.TopologyFan, cluster.TopologyTree, cluster.TopologyChain}
	for _, kind := range kinds {
		for replicas := 0; replicas <= 8; replicas++ {
			t.Run(fmt.Sprintf("%v_%d", kind, replicas), func(t *testing.T) {
				p, err := PlanCluster(replicas, kind)
				require.NoError(t, err)
				require.Len(t, p.Entries, replicas+1)

				assert.Equal(t, NoUpstream, p.Entries[0].Upstream)
				for i := 1; i <= replicas; i++ {
					up := p.Entries[i].Upstream
					require.True(t, up >= 0 && up < i, "node %d upstream %d", i, up)
					// reaching the root proves no cycle
					assert.Equal(t, 0, walkToRoot(p, i))
				}
				for i := 0; i <= replicas; i++ {
					assert.GreaterOrEqual(t, p.Entries[i].MaxWalSenders, len(p.Downstreams(i)),
						"node %d cannot serve its downstreams", i)
				}
			})
		}
	}
}

func walkToRoot(p *Plan, node int) int {
	for p.Entries[node].Upstream != NoUpstream {
		node = p.Entries[node].Upstream
	}
	return node
}

func TestPlanFanShape(t *testing.T) {
	p, err := PlanCluster(2, cluster.TopologyFan)
	require.NoError(t, err)

	assert.Equal(t, 0, p.Entries[1].Upstream)
	assert.Equal(t, 0, p.Entries[2].Upstream)
	// 2 standbys + 3 clone headroom
	assert.Equal(t, 5, p.Entries[0].MaxWalSenders)
	assert.Equal(t, 0, p.Entries[1].MaxWalSenders)
	assert.Equal(t, 0, p.Entries[2].MaxWalSenders)
}

func TestPlanTreeShape(t *testing.T) {
	p, err := PlanCluster(4, cluster.TopologyTree)
	require.NoError(t, err)

	assert.Equal(t, 0, p.Entries[1].Upstream)
	for i := 2; i <= 4; i++ {
		assert.Equal(t, 1, p.Entries[i].Upstream)
	}
	assert.Equal(t, 3, p.Entries[0].MaxWalSenders)
	// serves all siblings: 4 standbys + 2 headroom
	assert.Equal(t, 6, p.Entries[1].MaxWalSenders)
	assert.Equal(t, 0, p.Entries[2].MaxWalSenders)
}

func TestPlanChainShape(t *testing.T) {
	p, err := PlanCluster(3, cluster.TopologyChain)
	require.NoError(t, err)

	assert.Equal(t, 0, p.Entries[1].Upstream)
	assert.Equal(t, 1, p.Entries[2].Upstream)
	assert.Equal(t, 2, p.Entries[3].Upstream)
	for i := 0; i <= 2; i++ {
		assert.Equal(t, 3, p.Entries[i].MaxWalSenders, "node %d", i)
	}
	assert.Equal(t, 0, p.Entries[3].MaxWalSenders)
}

func TestWalSendersCeiling(t *testing.T) {
	fan, err := PlanCluster(5, cluster.TopologyFan)
	require.NoError(t, err)
	assert.Equal(t, 8, fan.WalSendersCeiling())

	tree, err := PlanCluster(5, cluster.TopologyTree)
	require.NoError(t, err)
	assert.Equal(t, 7, tree.WalSendersCeiling())

	// chain guarantees a small fixed per-link need
	chain, err := PlanCluster(20, cluster.TopologyChain)
	require.NoError(t, err)
	assert.Equal(t, 3, chain.WalSendersCeiling())
}

func TestSupportedGatesCascading(t *testing.T) {
	assert.NoError(t, Supported(cluster.TopologyFan, 90100))
	assert.Error(t, Supported(cluster.TopologyTree, 90100))
	assert.Error(t, Supported(cluster.TopologyChain, 90100))
	assert.NoError(t, Supported(cluster.TopologyTree, 90200))
	assert.NoError(t, Supported(cluster.TopologyChain, 160000))
}

func TestRenderDepths(t *testing.T) {
	p, err := PlanCluster(3, cluster.TopologyTree)
	require.NoError(t, err)
	out := p.Render(testNodes(4))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "primary"))
	assert.True(t, strings.HasPrefix(lines[1], "`- standby1"))
	assert.True(t, strings.HasPrefix(lines[2], "   `- standby2"))
	assert.True(t, strings.HasPrefix(lines[3], "   `- standby3"))
}

func TestRenderChainFolds(t *testing.T) {
	p, err := PlanCluster(12, cluster.TopologyChain)
	require.NoError(t, err)
	out := p.Render(testNodes(13))

	// one continuation marker after ten chain levels
	assert.Equal(t, 1, strings.Count(out, "...\n"))
	// the node right after the fold restarts at the first indent level
	assert.Contains(t, out, "...\n`- standby11")
}
