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

package mactable

import (
	"sort"
	"sync"
	"time"
)

// Tables composes one learning table per agent. Each agent's table carries
// its own lock, so ingestion for unrelated agents never contends.
type Tables struct {
	mu     sync.RWMutex
	policy Policy
	tables map[string]*Table
}

// NewTables creates the per-agent table registry.
func NewTables(policy Policy) *Tables {
	return &Tables{
		policy: policy.withDefaults(),
		tables: make(map[string]*Table),
	}
}

// Policy returns the effective (defaulted) policy.
func (t *Tables) Policy() Policy {
	return t.policy
}

// Observe records a sighting for (agentID, mac), creating the agent's
// table on first use.
func (t *Tables) Observe(agentID string, ifIndex int32, mac string, ts time.Time, weight float64) error {
	return t.table(agentID).Observe(ifIndex, mac, ts, weight)
}

// Lookup returns the sighting for (agentID, mac) as of now.
func (t *Tables) Lookup(agentID, mac string, now time.Time) (Sighting, bool) {
	t.mu.RLock()
	table, ok := t.tables[agentID]
	t.mu.RUnlock()

	if !ok {
		return Sighting{}, false
	}

	return table.Lookup(mac, now)
}

// DownstreamSets returns, for every interface of the agent that has
// above-floor sightings, the MACs mapped to it with their decayed
// confidence and last-seen time. The returned sightings are copies; the
// caller may hold them across table updates.
func (t *Tables) DownstreamSets(agentID string, now time.Time) map[int32]map[string]Sighting {
	t.mu.RLock()
	table, ok := t.tables[agentID]
	t.mu.RUnlock()

	if !ok {
		return nil
	}

	table.mu.RLock()
	defer table.mu.RUnlock()

	sets := make(map[int32]map[string]Sighting)

	for mac, ent := range table.entries {
		conf := table.policy.decayed(ent.primary.Confidence, ent.primary.LastSeen, now)
		if conf < table.policy.ConfidenceFloor {
			continue
		}

		set, ok := sets[ent.primary.IfIndex]
		if !ok {
			set = make(map[string]Sighting)
			sets[ent.primary.IfIndex] = set
		}

		s := ent.primary
		s.Confidence = conf
		set[mac] = s
	}

	return sets
}

// AgentIDs returns the agents that have learning tables, sorted.
func (t *Tables) AgentIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.tables))
	for id := range t.tables {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Evict sweeps all tables, dropping fully decayed sightings.
func (t *Tables) Evict(now time.Time) int {
	t.mu.RLock()
	tables := make([]*Table, 0, len(t.tables))

	for _, table := range t.tables {
		tables = append(tables, table)
	}
	t.mu.RUnlock()

	evicted := 0
	for _, table := range tables {
		evicted += table.Evict(now)
	}

	return evicted
}

func (t *Tables) table(agentID string) *Table {
	t.mu.RLock()
	table, ok := t.tables[agentID]
	t.mu.RUnlock()

	if ok {
		return table
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if table, ok = t.tables[agentID]; ok {
		return table
	}

	table = NewTable(t.policy)
	t.tables[agentID] = table

	return table
}
