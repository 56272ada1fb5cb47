// Copyright (c) 2018, Postgres Professional

// Topology planning: turns replica count + shape choice into the upstream
// subscription graph and per-node WAL sender capacity.
package topology

import (
	"fmt"
	"strings"

	"pgflock/internal/cluster"
)

// Transient connections eaten by cloning tools while a downstream is being
// based off a node.
const (
	cloneHeadroom   = 3
	siblingHeadroom = 2
)

// Cascading replication (a standby feeding another standby) appeared in 9.2.
const minCascadingVersion = 90200

// NoUpstream marks the root of the subscription graph.
const NoUpstream = -1

type Entry struct {
	// index of the node this one subscribes to; NoUpstream for the primary
	Upstream int `json:"upstream"`
	// capacity this node must offer to downstreams plus clone headroom
	MaxWalSenders int `json:"max_wal_senders"`
}

// Plan maps node index -> Entry; entry 0 is the primary.
type Plan struct {
	Kind    cluster.Topology `json:"kind"`
	Entries []Entry          `json:"entries"`
}

// Supported gates shapes that need cascading replication on engine version.
// Violations are pre-provisioning fatal errors.
func Supported(kind cluster.Topology, version int) error {
	if kind == cluster.TopologyFan {
		return nil
	}
	if version < minCascadingVersion {
		return fmt.Errorf("topology %v needs cascading replication, engine version %d does not support it",
			kind, version)
	}
	return nil
}

func PlanCluster(replicas int, kind cluster.Topology) (*Plan, error) {
	if replicas < 0 {
		return nil, fmt.Errorf("replica count must be >= 0, got %d", replicas)
	}

	p := &Plan{Kind: kind, Entries: make([]Entry, replicas+1)}
	p.Entries[0] = Entry{Upstream: NoUpstream}

	switch kind {
	case cluster.TopologyFan:
		// everyone feeds off the primary
		for i := 1; i <= replicas; i++ {
			p.Entries[i] = Entry{Upstream: 0}
		}
		if replicas > 0 {
			p.Entries[0].MaxWalSenders = replicas + cloneHeadroom
		}
	case cluster.TopologyTree:
		// standby1 feeds off the primary and serves all its siblings
		for i := 1; i <= replicas; i++ {
			if i == 1 {
				p.Entries[i] = Entry{Upstream: 0}
			} else {
				p.Entries[i] = Entry{Upstream: 1}
			}
		}
		if replicas > 0 {
			p.Entries[0].MaxWalSenders = cloneHeadroom
			p.Entries[1].MaxWalSenders = replicas + siblingHeadroom
		}
	case cluster.TopologyChain:
		// each node feeds the next one
		for i := 1; i <= replicas; i++ {
			p.Entries[i] = Entry{Upstream: i - 1}
		}
		for i := 0; i < replicas; i++ {
			p.Entries[i].MaxWalSenders = cloneHeadroom
		}
	default:
		return nil, fmt.Errorf("unknown topology %v", kind)
	}

	return p, nil
}

// Downstreams returns the indices subscribed to the given node, ascending.
func (p *Plan) Downstreams(node int) []int {
	var ds []int
	for i, e := range p.Entries {
		if e.Upstream == node {
			ds = append(ds, i)
		}
	}
	return ds
}

// Depth of a node in the subscription tree; 0 for the primary.
func (p *Plan) Depth(node int) int {
	d := 0
	for p.Entries[node].Upstream != NoUpstream {
		node = p.Entries[node].Upstream
		d++
	}
	return d
}

// WalSendersCeiling is the per-node sender capacity the whole cluster must
// size connections for. Chain guarantees a small fixed per-link need, so a
// constant is used there; other shapes take the plan-wide maximum.
func (p *Plan) WalSendersCeiling() int {
	if p.Kind == cluster.TopologyChain {
		return cloneHeadroom
	}
	max := 0
	for _, e := range p.Entries {
		if e.MaxWalSenders > max {
			max = e.MaxWalSenders
		}
	}
	return max
}

// Every 10 chain levels the rendering resets indentation with a continuation
// marker so lines stay readable for long chains.
const renderFoldDepth = 10

// Render draws the upstream graph as an indented ASCII tree.
func (p *Plan) Render(nodes []cluster.NodeSpec) string {
	var b strings.Builder
	p.renderNode(&b, nodes, 0)
	return b.String()
}

func (p *Plan) renderNode(b *strings.Builder, nodes []cluster.NodeSpec, node int) {
	depth := p.Depth(node)
	indent := 0
	if depth > 0 {
		indent = (depth-1)%renderFoldDepth + 1
		if depth > 1 && indent == 1 {
			b.WriteString("...\n")
		}
	}
	if depth == 0 {
		fmt.Fprintf(b, "%s (port %d)\n", nodes[node].DisplayName(), nodes[node].Port)
	} else {
		fmt.Fprintf(b, "%s`- %s (port %d)\n",
			strings.Repeat("   ", indent-1), nodes[node].DisplayName(), nodes[node].Port)
	}
	for _, d := range p.Downstreams(node) {
		p.renderNode(b, nodes, d)
	}
}
