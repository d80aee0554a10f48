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

// Package mactable maintains per-agent MAC-to-interface learning tables
// with confidence decay, the working state the topology inference engine
// reads its downstream sets from.
package mactable

import (
	"fmt"
	"sync"
	"time"
)

// Sighting is the current best mapping of a MAC on one agent.
type Sighting struct {
	IfIndex    int32
	Confidence float64
	FirstSeen  time.Time
	LastSeen   time.Time
}

// entry keeps the established sighting plus at most one competing
// hypothesis observed on a different interface during the grace period.
type entry struct {
	primary    Sighting
	challenger *Sighting
}

// Table is the learning table of a single agent. A MAC maps to at most one
// interface at any time; the challenger is working state, never visible
// through Lookup or DownstreamSet.
type Table struct {
	mu      sync.RWMutex
	policy  Policy
	entries map[string]*entry
}

// NewTable creates a table with the given policy (zero fields defaulted).
func NewTable(policy Policy) *Table {
	return &Table{
		policy:  policy.withDefaults(),
		entries: make(map[string]*entry),
	}
}

// Observe records that mac was seen on ifIndex at ts with the given sample
// weight.
func (t *Table) Observe(ifIndex int32, mac string, ts time.Time, weight float64) error {
	if weight <= 0 {
		return ErrInvalidWeight
	}

	if ifIndex < 0 {
		return ErrInvalidIfIndex
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ent, ok := t.entries[mac]
	if !ok {
		if len(t.entries) >= t.policy.MaxEntries {
			return fmt.Errorf("%w: %d entries", ErrCapacityExceeded, len(t.entries))
		}

		t.entries[mac] = &entry{primary: Sighting{
			IfIndex:    ifIndex,
			Confidence: t.clamp(weight),
			FirstSeen:  ts,
			LastSeen:   ts,
		}}

		return nil
	}

	t.observeExistingLocked(ent, ifIndex, ts, weight)

	return nil
}

func (t *Table) observeExistingLocked(ent *entry, ifIndex int32, ts time.Time, weight float64) {
	primaryConf := t.policy.decayed(ent.primary.Confidence, ent.primary.LastSeen, ts)

	if ent.primary.IfIndex == ifIndex {
		// reinforcement on the established interface
		ent.primary.Confidence = t.clamp(primaryConf + weight)
		ent.primary.LastSeen = ts

		if ent.challenger != nil {
			t.expireChallengerLocked(ent, ts)
		}

		return
	}

	// the MAC moved, or one anomalous sample arrived; penalize the
	// established sighting and let the hypotheses compete
	primaryConf *= t.policy.MovePenaltyFactor

	if primaryConf < t.policy.ConfidenceFloor {
		// the old mapping is gone, replace outright
		ent.primary = Sighting{IfIndex: ifIndex, Confidence: t.clamp(weight), FirstSeen: ts, LastSeen: ts}
		ent.challenger = nil

		return
	}

	ent.primary.Confidence = primaryConf
	ent.primary.LastSeen = ts

	switch {
	case ent.challenger == nil || ent.challenger.IfIndex != ifIndex:
		ent.challenger = &Sighting{IfIndex: ifIndex, Confidence: t.clamp(weight), FirstSeen: ts, LastSeen: ts}
	default:
		conf := t.policy.decayed(ent.challenger.Confidence, ent.challenger.LastSeen, ts)
		ent.challenger.Confidence = t.clamp(conf + weight)
		ent.challenger.LastSeen = ts
	}

	// once the challenger outweighs the decayed established sighting the
	// move is considered real; promotion is one-way so a resolved move
	// cannot flap back on a single stale sample
	if ent.challenger.Confidence > ent.primary.Confidence {
		ent.primary = *ent.challenger
		ent.challenger = nil
	}
}

// expireChallengerLocked drops a challenger that outlived its grace period
// without overtaking the primary.
func (t *Table) expireChallengerLocked(ent *entry, now time.Time) {
	if now.Sub(ent.challenger.FirstSeen) > t.policy.MoveGracePeriod {
		ent.challenger = nil
	}
}

// Lookup returns the current sighting for mac with its confidence as of
// now. Sightings that have decayed below the floor are reported as absent.
func (t *Table) Lookup(mac string, now time.Time) (Sighting, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ent, ok := t.entries[mac]
	if !ok {
		return Sighting{}, false
	}

	conf := t.policy.decayed(ent.primary.Confidence, ent.primary.LastSeen, now)
	if conf < t.policy.ConfidenceFloor {
		return Sighting{}, false
	}

	s := ent.primary
	s.Confidence = conf

	return s, true
}

// DownstreamSet returns the MACs currently mapped to ifIndex with
// confidence at or above the floor, keyed to their decayed confidence.
func (t *Table) DownstreamSet(ifIndex int32, now time.Time) map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := make(map[string]float64)

	for mac, ent := range t.entries {
		if ent.primary.IfIndex != ifIndex {
			continue
		}

		conf := t.policy.decayed(ent.primary.Confidence, ent.primary.LastSeen, now)
		if conf >= t.policy.ConfidenceFloor {
			set[mac] = conf
		}
	}

	return set
}

// Len returns the number of entries, including fully decayed ones not yet
// evicted.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// Evict removes entries whose confidence has decayed below the floor.
func (t *Table) Evict(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0

	for mac, ent := range t.entries {
		conf := t.policy.decayed(ent.primary.Confidence, ent.primary.LastSeen, now)
		if conf < t.policy.ConfidenceFloor {
			delete(t.entries, mac)
			evicted++
		}
	}

	return evicted
}

func (t *Table) clamp(confidence float64) float64 {
	if confidence > t.policy.ConfidenceCeiling {
		return t.policy.ConfidenceCeiling
	}

	return confidence
}
