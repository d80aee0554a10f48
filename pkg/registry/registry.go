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

// Package registry tracks the sFlow agents observed on the stream and the
// interfaces they have reported.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/models"
)

// Interface is a device-local interface, identified by (agent, ifIndex).
type Interface struct {
	IfIndex    int32
	LastActive time.Time
	Counters   models.InterfaceCounters
}

// Agent is one telemetry source. Agents are created on first observation
// and never destroyed; they go stale after a silence window instead.
type Agent struct {
	ID         string
	Addr       string
	FirstSeen  time.Time
	LastSeen   time.Time
	Interfaces map[int32]*Interface
}

// Registry is the shared agent/interface table. All methods are safe for
// concurrent use.
type Registry struct {
	mu                     sync.RWMutex
	agents                 map[string]*Agent
	maxAgents              int
	maxInterfacesPerAgent  int
	capacityWarnedPerAgent map[string]struct{}
	log                    logger.Logger
}

const (
	DefaultMaxAgents             = 1024
	DefaultMaxInterfacesPerAgent = 4096
)

// NewRegistry creates a registry with the given capacity limits; zero or
// negative limits fall back to the defaults.
func NewRegistry(maxAgents, maxInterfacesPerAgent int, log logger.Logger) *Registry {
	if maxAgents <= 0 {
		maxAgents = DefaultMaxAgents
	}

	if maxInterfacesPerAgent <= 0 {
		maxInterfacesPerAgent = DefaultMaxInterfacesPerAgent
	}

	return &Registry{
		agents:                 make(map[string]*Agent),
		maxAgents:              maxAgents,
		maxInterfacesPerAgent:  maxInterfacesPerAgent,
		capacityWarnedPerAgent: make(map[string]struct{}),
		log:                    log,
	}
}

// RegisterObservation creates the agent and interface if unseen, otherwise
// refreshes their last-seen timestamps. ifIndex < 0 registers the agent
// only (flow samples whose port could not be attributed).
func (r *Registry) RegisterObservation(agentID, addr string, ifIndex int32, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, err := r.ensureAgentLocked(agentID, addr, ts)
	if err != nil {
		return err
	}

	if ifIndex < 0 {
		return nil
	}

	iface, ok := agent.Interfaces[ifIndex]
	if !ok {
		if len(agent.Interfaces) >= r.maxInterfacesPerAgent {
			r.warnCapacityLocked(agentID, "interface limit reached")
			return fmt.Errorf("%w: agent %s has %d interfaces", ErrCapacityExceeded, agentID, len(agent.Interfaces))
		}

		iface = &Interface{IfIndex: ifIndex}
		agent.Interfaces[ifIndex] = iface
	}

	if ts.After(iface.LastActive) {
		iface.LastActive = ts
	}

	return nil
}

// UpdateCounters folds a counter sample into the interface statistics,
// creating the agent/interface as needed.
func (r *Registry) UpdateCounters(agentID, addr string, ifIndex int32, counters models.InterfaceCounters, ts time.Time) error {
	if ifIndex < 0 {
		return ErrInvalidIfIndex
	}

	if err := r.RegisterObservation(agentID, addr, ifIndex, ts); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	iface := agent.Interfaces[ifIndex]
	iface.Counters = counters

	return nil
}

// IsKnown reports whether the agent has been observed.
func (r *Registry) IsKnown(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.agents[agentID]

	return ok
}

// AgentCount returns the number of registered agents.
func (r *Registry) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// InterfaceCount returns the number of interfaces known for an agent.
func (r *Registry) InterfaceCount(agentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return 0
	}

	return len(agent.Interfaces)
}

// StaleAgents returns the IDs of agents silent for longer than ttl.
func (r *Registry) StaleAgents(now time.Time, ttl time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []string

	for id, agent := range r.agents {
		if now.Sub(agent.LastSeen) > ttl {
			stale = append(stale, id)
		}
	}

	sort.Strings(stale)

	return stale
}

// AgentIDs returns all registered agent IDs in sorted order.
func (r *Registry) AgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// InterfaceIndexes returns the sorted interface indexes of an agent.
func (r *Registry) InterfaceIndexes(agentID string) []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return nil
	}

	idxs := make([]int32, 0, len(agent.Interfaces))
	for idx := range agent.Interfaces {
		idxs = append(idxs, idx)
	}

	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	return idxs
}

// AgentAddr returns the management address recorded for the agent, if any.
func (r *Registry) AgentAddr(agentID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if agent, ok := r.agents[agentID]; ok {
		return agent.Addr
	}

	return ""
}

// Snapshot returns deep copies of all agents, sorted by ID, with staleness
// evaluated against now and ttl.
func (r *Registry) Snapshot(now time.Time, ttl time.Duration) []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]models.Agent, 0, len(r.agents))

	for _, agent := range r.agents {
		m := models.Agent{
			AgentID:    agent.ID,
			FirstSeen:  agent.FirstSeen,
			LastSeen:   agent.LastSeen,
			Stale:      ttl > 0 && now.Sub(agent.LastSeen) > ttl,
			Interfaces: make([]models.Interface, 0, len(agent.Interfaces)),
		}

		for _, iface := range agent.Interfaces {
			m.Interfaces = append(m.Interfaces, models.Interface{
				AgentID:    agent.ID,
				IfIndex:    iface.IfIndex,
				LastActive: iface.LastActive,
				Counters:   iface.Counters,
			})
		}

		sort.Slice(m.Interfaces, func(i, j int) bool {
			return m.Interfaces[i].IfIndex < m.Interfaces[j].IfIndex
		})

		agents = append(agents, m)
	}

	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })

	return agents
}

func (r *Registry) ensureAgentLocked(agentID, addr string, ts time.Time) (*Agent, error) {
	agent, ok := r.agents[agentID]
	if !ok {
		if len(r.agents) >= r.maxAgents {
			r.warnCapacityLocked(agentID, "agent limit reached")
			return nil, fmt.Errorf("%w: %d agents registered", ErrCapacityExceeded, len(r.agents))
		}

		agent = &Agent{
			ID:         agentID,
			Addr:       addr,
			FirstSeen:  ts,
			Interfaces: make(map[int32]*Interface),
		}
		r.agents[agentID] = agent
	}

	if addr != "" && agent.Addr == "" {
		agent.Addr = addr
	}

	if ts.After(agent.LastSeen) {
		agent.LastSeen = ts
	}

	return agent, nil
}

// warnCapacityLocked logs the capacity rejection once per offending agent
// so a spoofed identifier flood cannot drown the log.
func (r *Registry) warnCapacityLocked(agentID, reason string) {
	if _, seen := r.capacityWarnedPerAgent[agentID]; seen {
		return
	}

	// the dedup map is itself bounded; past that point log unconditionally
	if len(r.capacityWarnedPerAgent) < 2*r.maxAgents {
		r.capacityWarnedPerAgent[agentID] = struct{}{}
	}
	r.log.Warn().Str("agent_id", agentID).Msg("Rejecting observation: " + reason)
}
