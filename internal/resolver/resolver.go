// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package resolver walks an update graph fetched from Cincinnati and
// picks the next release to deploy, grounded on the reference agent's
// cincinnati::find_update (and its is_same_checksum/evaluate_deadend
// helpers). Kept separate from the transport package (internal/cincinnati)
// so the graph-walking algorithm is unit-testable against hand-built
// graphs with no HTTP involved.
package resolver

import (
	"fmt"
	"strconv"

	"github.com/coreos/zincati/internal/cincinnati"
	"github.com/coreos/zincati/internal/deadend"
	"github.com/coreos/zincati/internal/release"
)

// Metadata keys a graph node may carry, mirrored from the Cincinnati
// record schema used by the upstream graph-builder.
const (
	metaAgeIndex      = "org.fedoraproject.coreos.releases.age_index"
	metaScheme        = "org.fedoraproject.coreos.scheme"
	metaDeadend       = "org.fedoraproject.coreos.updates.deadend"
	metaDeadendReason = "org.fedoraproject.coreos.updates.deadend_reason"
)

// ErrNodeLookup indicates an edge in the graph pointed at an index with
// no corresponding node — a malformed response from the graph service.
type ErrNodeLookup struct {
	Index int
}

func (e *ErrNodeLookup) Error() string {
	return fmt.Sprintf("target node %d not present in graph", e.Index)
}

// Booted describes the currently running deployment, as reported by
// the OS manager, used to locate the corresponding graph node.
type Booted struct {
	Scheme release.Scheme
	// Checksum is the deployment's content checksum, compared directly
	// against checksum-scheme nodes.
	Checksum string
	// ImageReference is the full OSTree image reference of an OCI-scheme
	// deployment, compared against oci-scheme nodes after unwrapping.
	ImageReference string
}

// Result is the outcome of one resolution pass.
type Result struct {
	// Next is the selected update target, or nil if none was found (no
	// current node, no reachable targets, or a rejected downgrade).
	Next *release.Release
	// Current is the release corresponding to the booted deployment, or
	// nil if it could not be located in the graph.
	Current *release.Release
	// DeadendReason is non-empty when Current is a dead-end release; an
	// empty Current is never a dead-end.
	DeadendReason string
	// IgnoredCandidates counts update targets excluded because they
	// matched an entry in the deny list.
	IgnoredCandidates int
	NodeCount         int
	EdgeCount         int
}

func nodeRelease(n cincinnati.Node) (release.Release, error) {
	scheme := release.Scheme(n.Metadata[metaScheme])
	var ageIndex *int64
	if raw, ok := n.Metadata[metaAgeIndex]; ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return release.Release{}, fmt.Errorf("failed to parse age_index %q: %w", raw, err)
		}
		ageIndex = &v
	}
	return release.New(n.Version, n.Payload, scheme, ageIndex), nil
}

func nodeMatchesBooted(n cincinnati.Node, booted Booted) bool {
	switch release.Scheme(n.Metadata[metaScheme]) {
	case release.SchemeOCI:
		if booted.Scheme != release.SchemeOCI || booted.ImageReference == "" {
			return false
		}
		local := release.New("", booted.ImageReference, release.SchemeOCI, nil)
		node := release.New("", n.Payload, release.SchemeOCI, nil)
		return local.Equal(node)
	case release.SchemeChecksum:
		return booted.Scheme == release.SchemeChecksum && booted.Checksum == n.Payload
	default:
		return false
	}
}

// evaluateDeadend returns the dead-end reason for a node, or "" if the
// node is not marked as a dead-end.
func evaluateDeadend(n cincinnati.Node) string {
	if n.Metadata[metaDeadend] != "true" {
		return ""
	}
	reason := n.Metadata[metaDeadendReason]
	if reason == "" {
		reason = "(unknown reason)"
	}
	return reason
}

// Resolve walks graph looking for an update reachable from the booted
// deployment, excluding denyList candidates and honoring
// allowDowngrade. It also refreshes state/writer with the booted
// node's dead-end status as a side effect, matching the reference
// agent's combined responsibility in find_update.
func Resolve(graph *cincinnati.Graph, booted Booted, denyList release.DenyList, allowDowngrade bool, state *deadend.State, writer *deadend.Writer) (*Result, error) {
	res := &Result{NodeCount: len(graph.Nodes), EdgeCount: len(graph.Edges)}

	curPos := -1
	var curNode cincinnati.Node
	for i, n := range graph.Nodes {
		if nodeMatchesBooted(n, booted) {
			curPos = i
			curNode = n
			break
		}
	}
	if curPos == -1 {
		return res, nil
	}

	curRelease, err := nodeRelease(curNode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booted node: %w", err)
	}
	res.Current = &curRelease

	reason := evaluateDeadend(curNode)
	res.DeadendReason = reason
	if state != nil && writer != nil {
		if err := deadend.Refresh(state, writer, reason); err != nil {
			return nil, fmt.Errorf("failed to refresh dead-end status: %w", err)
		}
	}

	var candidates []release.Release
	for _, e := range graph.Edges {
		if int(e[0]) != curPos {
			continue
		}
		dst := int(e[1])
		if dst < 0 || dst >= len(graph.Nodes) {
			return nil, &ErrNodeLookup{Index: dst}
		}
		rel, err := nodeRelease(graph.Nodes[dst])
		if err != nil {
			return nil, fmt.Errorf("failed to parse candidate node %d: %w", dst, err)
		}
		candidates = append(candidates, rel)
	}

	var best *release.Release
	ignored := 0
	for i := range candidates {
		cand := candidates[i]
		if denyList.Contains(cand) {
			ignored++
			continue
		}
		if best == nil || best.Less(cand) {
			best = &candidates[i]
		}
	}
	res.IgnoredCandidates = ignored

	if best == nil {
		return res, nil
	}
	if !curRelease.Less(*best) {
		// best <= current: a downgrade (or no-op) hint.
		if !allowDowngrade {
			return res, nil
		}
	}
	res.Next = best
	return res, nil
}
