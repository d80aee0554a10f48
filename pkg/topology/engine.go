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

// Package topology infers inter-device links from the MAC learning tables
// of independent sFlow agents and maintains the resulting graph.
package topology

import (
	"sort"
	"sync"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/mactable"
	"github.com/carverauto/flowtopo/pkg/models"
	"github.com/carverauto/flowtopo/pkg/registry"
)

// Config holds the inference tunables. These are policy knobs, not
// calibrated constants; validate them against a known testbed.
type Config struct {
	OverlapThreshold  float64       `json:"overlap_threshold"`
	MinSetCardinality int           `json:"min_set_cardinality"`
	ConfidenceFloor   float64       `json:"confidence_floor"`
	AgentStaleTTL     time.Duration `json:"-"`
}

const (
	defaultOverlapThreshold  = 0.5
	defaultMinSetCardinality = 2
	defaultConfidenceFloor   = 0.2
	defaultAgentStaleTTL     = 10 * time.Minute
)

func DefaultConfig() Config {
	return Config{
		OverlapThreshold:  defaultOverlapThreshold,
		MinSetCardinality: defaultMinSetCardinality,
		ConfidenceFloor:   defaultConfidenceFloor,
		AgentStaleTTL:     defaultAgentStaleTTL,
	}
}

func (c *Config) validate() error {
	if c.OverlapThreshold <= 0 || c.OverlapThreshold > 1 {
		return ErrInvalidOverlap
	}

	if c.MinSetCardinality < 1 {
		return ErrInvalidCardinality
	}

	if c.ConfidenceFloor <= 0 || c.ConfidenceFloor >= 1 {
		return ErrInvalidFloor
	}

	return nil
}

// Engine cross-references the per-agent learning tables to infer edges.
// Reconcile only reads the tables; ingestion keeps writing while a pass
// runs.
type Engine struct {
	mu         sync.RWMutex
	cfg        Config
	registry   *registry.Registry
	tables     *mactable.Tables
	edges      map[string]models.TopologyEdge
	byEndpoint map[models.Endpoint]string
	ambiguous  map[models.Endpoint]models.AmbiguousInterface
	hosts      map[models.Endpoint]models.Host
	hostIPs    map[string]string
	log        logger.Logger
}

// NewEngine creates an inference engine over the given registry and tables.
func NewEngine(cfg Config, reg *registry.Registry, tables *mactable.Tables, log logger.Logger) (*Engine, error) {
	if cfg.OverlapThreshold == 0 && cfg.MinSetCardinality == 0 && cfg.ConfidenceFloor == 0 {
		cfg = DefaultConfig()
	}

	if cfg.AgentStaleTTL <= 0 {
		cfg.AgentStaleTTL = defaultAgentStaleTTL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if reg == nil {
		return nil, ErrRegistryRequired
	}

	if tables == nil {
		return nil, ErrTablesRequired
	}

	return &Engine{
		cfg:        cfg,
		registry:   reg,
		tables:     tables,
		edges:      make(map[string]models.TopologyEdge),
		byEndpoint: make(map[models.Endpoint]string),
		ambiguous:  make(map[models.Endpoint]models.AmbiguousInterface),
		hosts:      make(map[models.Endpoint]models.Host),
		hostIPs:    make(map[string]string),
		log:        log,
	}, nil
}

// maxHostAddrs bounds the MAC-to-IP index. Past the cap new MACs keep no
// address and their hosts fall back to MAC-derived names.
const maxHostAddrs = 1 << 16

// RecordHostIP remembers the most recent IP seen for a MAC in sampled
// traffic, feeding host naming in snapshots and exports.
func (e *Engine) RecordHostIP(mac, ip string) {
	if mac == "" || ip == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.hostIPs[mac]; !ok && len(e.hostIPs) >= maxHostAddrs {
		return
	}

	e.hostIPs[mac] = ip
}

// ObserveSighting is the cheap incremental step run per observation: a
// sighting on an interface that already carries an inferred edge counts as
// reinforcement of that edge. Full re-evaluation happens in Reconcile.
func (e *Engine) ObserveSighting(agentID string, ifIndex int32, ts time.Time) {
	ep := models.Endpoint{AgentID: agentID, IfIndex: ifIndex}

	e.mu.Lock()
	defer e.mu.Unlock()

	key, ok := e.byEndpoint[ep]
	if !ok {
		return
	}

	edge := e.edges[key]
	if ts.After(edge.LastReinforced) {
		edge.LastReinforced = ts
		e.edges[key] = edge
	}
}

// ReconcileStats summarizes one full reconciliation pass.
type ReconcileStats struct {
	Interfaces int
	Candidates int
	Edges      int
	Hosts      int
	Ambiguous  int
	Pruned     int
}

// candidate is one link hypothesis for an interface.
type candidate struct {
	peer           models.Endpoint
	overlap        float64
	confidence     float64
	lastReinforced time.Time
}

// Reconcile recomputes the edge set from the current downstream sets. It
// is idempotent: with no intervening ingestion a second pass yields the
// same edges and confidences. The pass holds only read locks on the
// learning tables, so ingestion is never blocked for its duration.
func (e *Engine) Reconcile(now time.Time) ReconcileStats {
	sets := e.collectSets(now)

	endpoints := make([]models.Endpoint, 0, len(sets))
	for ep := range sets {
		endpoints = append(endpoints, ep)
	}

	sort.Slice(endpoints, func(i, j int) bool { return lessEndpoint(endpoints[i], endpoints[j]) })

	candidates := e.pairCandidates(endpoints, sets)

	stats := ReconcileStats{Interfaces: len(sets)}
	for _, cands := range candidates {
		stats.Candidates += len(cands)
	}

	ambiguous := e.resolveAmbiguity(endpoints, candidates, sets)
	edges, byEndpoint := e.selectEdges(endpoints, candidates, ambiguous)
	hosts := e.collectHosts(now, byEndpoint, ambiguous)

	e.mu.Lock()
	defer e.mu.Unlock()

	for ep, h := range hosts {
		if ip, ok := e.hostIPs[h.MAC]; ok {
			h.IP = ip
			hosts[ep] = h
		}
	}

	// carry forward incremental reinforcement timestamps
	for key, edge := range edges {
		if prev, ok := e.edges[key]; ok && prev.LastReinforced.After(edge.LastReinforced) {
			edge.LastReinforced = prev.LastReinforced
			edges[key] = edge
		}
	}

	for key := range e.edges {
		if _, ok := edges[key]; !ok {
			stats.Pruned++
		}
	}

	e.edges = edges
	e.byEndpoint = byEndpoint
	e.ambiguous = ambiguous
	e.hosts = hosts

	stats.Edges = len(edges)
	stats.Hosts = len(hosts)
	stats.Ambiguous = len(ambiguous)

	e.log.Debug().
		Int("interfaces", stats.Interfaces).
		Int("candidates", stats.Candidates).
		Int("edges", stats.Edges).
		Int("hosts", stats.Hosts).
		Int("ambiguous", stats.Ambiguous).
		Int("pruned", stats.Pruned).
		Msg("Reconciliation pass complete")

	return stats
}

// collectHosts treats every interface whose downstream set collapsed to a
// single MAC as an access port with one attached end station. Interfaces
// already carrying an edge, or flagged ambiguous, are never access ports.
func (e *Engine) collectHosts(
	now time.Time,
	byEndpoint map[models.Endpoint]string,
	ambiguous map[models.Endpoint]models.AmbiguousInterface,
) map[models.Endpoint]models.Host {
	hosts := make(map[models.Endpoint]models.Host)

	for _, agentID := range e.tables.AgentIDs() {
		for ifIndex, set := range e.tables.DownstreamSets(agentID, now) {
			if len(set) != 1 {
				continue
			}

			ep := models.Endpoint{AgentID: agentID, IfIndex: ifIndex}

			if _, ok := byEndpoint[ep]; ok {
				continue
			}

			if _, ok := ambiguous[ep]; ok {
				continue
			}

			for mac, s := range set {
				conf := s.Confidence
				if conf > 1 {
					conf = 1
				}

				hosts[ep] = models.Host{MAC: mac, Attachment: ep, Confidence: conf}
			}
		}
	}

	return hosts
}

// collectSets gathers the qualifying downstream sets. An agent with fewer
// than two populated interfaces contributes nothing: with a single
// interface there is nothing to disambiguate against.
func (e *Engine) collectSets(now time.Time) map[models.Endpoint]map[string]mactable.Sighting {
	sets := make(map[models.Endpoint]map[string]mactable.Sighting)

	for _, agentID := range e.tables.AgentIDs() {
		ds := e.tables.DownstreamSets(agentID, now)
		if len(ds) < 2 {
			continue
		}

		for ifIndex, set := range ds {
			if len(set) < e.cfg.MinSetCardinality {
				continue
			}

			sets[models.Endpoint{AgentID: agentID, IfIndex: ifIndex}] = set
		}
	}

	return sets
}

// pairCandidates proposes an edge for every cross-agent interface pair
// whose downstream sets overlap above the threshold.
func (e *Engine) pairCandidates(
	endpoints []models.Endpoint,
	sets map[models.Endpoint]map[string]mactable.Sighting,
) map[models.Endpoint][]candidate {
	candidates := make(map[models.Endpoint][]candidate)

	for i := 0; i < len(endpoints); i++ {
		for j := i + 1; j < len(endpoints); j++ {
			a, b := endpoints[i], endpoints[j]
			if a.AgentID == b.AgentID {
				continue
			}

			setA, setB := sets[a], sets[b]

			overlap := jaccard(setA, setB)
			if overlap < e.cfg.OverlapThreshold {
				continue
			}

			conf := overlap * minMeanConfidence(setA, setB)
			last := latestSighting(setA, setB)

			candidates[a] = append(candidates[a], candidate{peer: b, overlap: overlap, confidence: conf, lastReinforced: last})
			candidates[b] = append(candidates[b], candidate{peer: a, overlap: overlap, confidence: conf, lastReinforced: last})
		}
	}

	for _, cands := range candidates {
		sortCandidates(cands)
	}

	return candidates
}

// resolveAmbiguity flags interfaces whose competing candidates share the
// same MAC population with each other: the signature of a hub or an
// unmonitored switch in between. Such interfaces get no edge, but the
// competing hypotheses are surfaced rather than dropped.
func (e *Engine) resolveAmbiguity(
	endpoints []models.Endpoint,
	candidates map[models.Endpoint][]candidate,
	sets map[models.Endpoint]map[string]mactable.Sighting,
) map[models.Endpoint]models.AmbiguousInterface {
	ambiguous := make(map[models.Endpoint]models.AmbiguousInterface)

	for _, ep := range endpoints {
		cands := candidates[ep]
		if len(cands) < 2 {
			continue
		}

		if !peersShareEvidence(cands, sets, e.cfg.OverlapThreshold) {
			continue
		}

		ai := models.AmbiguousInterface{Endpoint: ep}
		for _, c := range cands {
			ai.Candidates = append(ai.Candidates, models.EdgeCandidate{
				Peer:           c.peer,
				Overlap:        c.overlap,
				Confidence:     c.confidence,
				LastReinforced: c.lastReinforced,
			})
		}

		ambiguous[ep] = ai
	}

	return ambiguous
}

// peersShareEvidence reports whether any two candidate peers' downstream
// sets overlap above the threshold with each other.
func peersShareEvidence(
	cands []candidate,
	sets map[models.Endpoint]map[string]mactable.Sighting,
	threshold float64,
) bool {
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			if jaccard(sets[cands[i].peer], sets[cands[j].peer]) >= threshold {
				return true
			}
		}
	}

	return false
}

// selectEdges performs the competitive assignment: each non-ambiguous
// interface nominates its best candidate, and an edge materializes only
// when both endpoints nominate each other. At most one edge per interface
// by construction.
func (e *Engine) selectEdges(
	endpoints []models.Endpoint,
	candidates map[models.Endpoint][]candidate,
	ambiguous map[models.Endpoint]models.AmbiguousInterface,
) (map[string]models.TopologyEdge, map[models.Endpoint]string) {
	best := make(map[models.Endpoint]candidate)

	for _, ep := range endpoints {
		if _, isAmbiguous := ambiguous[ep]; isAmbiguous {
			continue
		}

		cands := candidates[ep]
		if len(cands) == 0 {
			continue
		}

		best[ep] = cands[0]
	}

	edges := make(map[string]models.TopologyEdge)
	byEndpoint := make(map[models.Endpoint]string)

	for ep, c := range best {
		peerBest, ok := best[c.peer]
		if !ok || peerBest.peer != ep {
			continue
		}

		if c.confidence < e.cfg.ConfidenceFloor {
			continue
		}

		a, b := ep, c.peer
		if lessEndpoint(b, a) {
			a, b = b, a
		}

		edge := models.TopologyEdge{
			A:              a,
			B:              b,
			Confidence:     c.confidence,
			Overlap:        c.overlap,
			LastReinforced: c.lastReinforced,
		}

		key := edge.Key()
		edges[key] = edge
		byEndpoint[a] = key
		byEndpoint[b] = key
	}

	return edges, byEndpoint
}

// sortCandidates orders link hypotheses deterministically: overlap, then
// confidence, then recency, then canonical peer order. An explicit
// comparator rather than map iteration order keeps selection testable.
func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]

		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}

		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}

		if !a.lastReinforced.Equal(b.lastReinforced) {
			return a.lastReinforced.After(b.lastReinforced)
		}

		return lessEndpoint(a.peer, b.peer)
	})
}

func lessEndpoint(a, b models.Endpoint) bool {
	if a.AgentID != b.AgentID {
		return a.AgentID < b.AgentID
	}

	return a.IfIndex < b.IfIndex
}

// jaccard computes |A ∩ B| / |A ∪ B| over the MAC keys of two sets.
func jaccard(a, b map[string]mactable.Sighting) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0

	for mac := range small {
		if _, ok := large[mac]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection

	return float64(intersection) / float64(union)
}

// minMeanConfidence takes the weaker side's mean sighting confidence,
// clamped into [0, 1]: one well-established set cannot vouch for a
// sparsely observed peer.
func minMeanConfidence(a, b map[string]mactable.Sighting) float64 {
	m := meanConfidence(a)
	if mb := meanConfidence(b); mb < m {
		m = mb
	}

	if m > 1 {
		return 1
	}

	return m
}

func meanConfidence(set map[string]mactable.Sighting) float64 {
	if len(set) == 0 {
		return 0
	}

	var sum float64
	for _, s := range set {
		sum += s.Confidence
	}

	return sum / float64(len(set))
}

func latestSighting(a, b map[string]mactable.Sighting) time.Time {
	var latest time.Time

	for _, set := range []map[string]mactable.Sighting{a, b} {
		for _, s := range set {
			if s.LastSeen.After(latest) {
				latest = s.LastSeen
			}
		}
	}

	return latest
}
