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

// Package models contains the shared data models exposed to consumers of
// topology snapshots.
package models

import (
	"fmt"
	"time"
)

// Endpoint identifies one side of an inferred link: an interface on an agent.
type Endpoint struct {
	AgentID string `json:"agent_id"`
	IfIndex int32  `json:"if_index"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.AgentID, e.IfIndex)
}

// InterfaceCounters holds the statistics folded in from counter samples.
type InterfaceCounters struct {
	InOctets     uint64 `json:"in_octets"`
	OutOctets    uint64 `json:"out_octets"`
	InUcastPkts  uint64 `json:"in_ucast_pkts"`
	OutUcastPkts uint64 `json:"out_ucast_pkts"`
	IfSpeed      uint64 `json:"if_speed,omitempty"`
}

// Interface is a known interface on an agent.
type Interface struct {
	AgentID    string            `json:"agent_id"`
	IfIndex    int32             `json:"if_index"`
	LastActive time.Time         `json:"last_active"`
	Counters   InterfaceCounters `json:"counters"`
}

// Agent is a device emitting sFlow telemetry, identified by its management
// address (or an opaque agent identifier when no address is known).
type Agent struct {
	AgentID    string      `json:"agent_id"`
	FirstSeen  time.Time   `json:"first_seen"`
	LastSeen   time.Time   `json:"last_seen"`
	Stale      bool        `json:"stale,omitempty"`
	Interfaces []Interface `json:"interfaces"`
}

// TopologyEdge is an inferred, undirected link between two interfaces on
// two different agents. Endpoints are ordered so that A.AgentID < B.AgentID
// (ties broken by interface index) to keep edge identity canonical.
type TopologyEdge struct {
	A              Endpoint  `json:"a"`
	B              Endpoint  `json:"b"`
	Confidence     float64   `json:"confidence"`
	Overlap        float64   `json:"overlap"`
	LastReinforced time.Time `json:"last_reinforced"`
}

// Key returns the canonical identity of the edge.
func (e *TopologyEdge) Key() string {
	return e.A.String() + "~" + e.B.String()
}

// EdgeCandidate is one competing link hypothesis for an interface.
type EdgeCandidate struct {
	Peer           Endpoint  `json:"peer"`
	Overlap        float64   `json:"overlap"`
	Confidence     float64   `json:"confidence"`
	LastReinforced time.Time `json:"last_reinforced"`
}

// AmbiguousInterface marks an interface for which more than one candidate
// edge passed the overlap threshold, typically a hub or an unmonitored
// switch in between. No single edge is chosen for it.
type AmbiguousInterface struct {
	Endpoint   Endpoint        `json:"endpoint"`
	Candidates []EdgeCandidate `json:"candidates"`
}

// Host is an end station inferred from an access interface: a downstream
// set that collapsed to a single MAC. The IP is the most recent address
// seen for that MAC in sampled traffic, when any was seen at all.
type Host struct {
	MAC        string   `json:"mac"`
	IP         string   `json:"ip,omitempty"`
	Attachment Endpoint `json:"attachment"`
	Confidence float64  `json:"confidence"`
}

// TopologySnapshot is a consistent point-in-time view of the inferred
// topology. Snapshots are read-only copies; mutating one has no effect on
// the underlying graph.
type TopologySnapshot struct {
	SnapshotID  string               `json:"snapshot_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Agents      []Agent              `json:"agents"`
	Edges       []TopologyEdge       `json:"edges"`
	Hosts       []Host               `json:"hosts,omitempty"`
	Ambiguous   []AmbiguousInterface `json:"ambiguous,omitempty"`
}
