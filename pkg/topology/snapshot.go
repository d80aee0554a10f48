/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package topology

import (
	"sort"
	"time"

	"github.com/carverauto/flowtopo/pkg/models"
	"github.com/google/uuid"
)

// Snapshot materializes a consistent, read-only view of the current graph.
// Edges below the confidence floor or touching a stale agent are excluded.
// Snapshot has no side effects; calling it twice with no intervening
// ingestion yields identical edge sets and confidences.
func (e *Engine) Snapshot(now time.Time) *models.TopologySnapshot {
	agents := e.registry.Snapshot(now, e.cfg.AgentStaleTTL)

	stale := make(map[string]bool, len(agents))
	for i := range agents {
		if agents[i].Stale {
			stale[agents[i].AgentID] = true
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	edges := make([]models.TopologyEdge, 0, len(e.edges))

	for _, edge := range e.edges {
		if edge.Confidence < e.cfg.ConfidenceFloor {
			continue
		}

		if stale[edge.A.AgentID] || stale[edge.B.AgentID] {
			continue
		}

		edges = append(edges, edge)
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].Key() < edges[j].Key() })

	hosts := make([]models.Host, 0, len(e.hosts))

	for _, h := range e.hosts {
		if stale[h.Attachment.AgentID] {
			continue
		}

		hosts = append(hosts, h)
	}

	sort.Slice(hosts, func(i, j int) bool {
		return lessEndpoint(hosts[i].Attachment, hosts[j].Attachment)
	})

	ambiguous := make([]models.AmbiguousInterface, 0, len(e.ambiguous))

	for _, ai := range e.ambiguous {
		if stale[ai.Endpoint.AgentID] {
			continue
		}

		cands := make([]models.EdgeCandidate, len(ai.Candidates))
		copy(cands, ai.Candidates)

		ambiguous = append(ambiguous, models.AmbiguousInterface{Endpoint: ai.Endpoint, Candidates: cands})
	}

	sort.Slice(ambiguous, func(i, j int) bool {
		return lessEndpoint(ambiguous[i].Endpoint, ambiguous[j].Endpoint)
	})

	return &models.TopologySnapshot{
		SnapshotID:  uuid.New().String(),
		GeneratedAt: now,
		Agents:      agents,
		Edges:       edges,
		Hosts:       hosts,
		Ambiguous:   ambiguous,
	}
}

// EdgeCount returns the number of edges currently held, floor-filtered.
func (e *Engine) EdgeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := 0

	for _, edge := range e.edges {
		if edge.Confidence >= e.cfg.ConfidenceFloor {
			n++
		}
	}

	return n
}
