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

package sflow

import (
	"time"

	"github.com/carverauto/flowtopo/pkg/models"
)

// RecordKind classifies a parsed sample.
type RecordKind string

const (
	RecordFlow    RecordKind = "flow"
	RecordCounter RecordKind = "counter"
)

// Well-known sflowtool field names.
const (
	fieldSampleType   = "sampleType"
	fieldSourceID     = "sourceId"
	fieldAgent        = "agent"
	fieldInputPort    = "inputPort"
	fieldOutputPort   = "outputPort"
	fieldSrcMAC       = "srcMAC"
	fieldDstMAC       = "dstMAC"
	fieldSrcIP        = "srcIP"
	fieldDstIP        = "dstIP"
	fieldMeanSkip     = "meanSkipCount"
	fieldIfIndex      = "ifIndex"
	fieldIfInOctets   = "ifInOctets"
	fieldIfOutOctets  = "ifOutOctets"
	fieldIfInUcast    = "ifInUcastPkts"
	fieldIfOutUcast   = "ifOutUcastPkts"
	fieldIfSpeed      = "ifSpeed"
	fieldUnixSeconds  = "unixSecondsUTC"
	sampleTypeFlow    = "FLOWSAMPLE"
	sampleTypeCounter = "COUNTERSSAMPLE"
)

// BroadcastMAC never identifies a host and is excluded from learning.
const BroadcastMAC = "ffffffffffff"

// Port values starting with these prefixes carry no usable interface index.
var portIgnorePrefixes = []string{"multiple ", "dropCode"}

// Sample is one decoded sample block inside a datagram, kept as raw
// token/value pairs until classified by Observation.
type Sample struct {
	Fields map[string]string

	// line of the startSample marker, for error reporting
	startLine int
}

// Datagram is one startDatagram/endDatagram block: the emitting agent's
// address, datagram-level parameters, and its samples.
type Datagram struct {
	AgentAddr string
	Params    map[string]string
	Samples   []Sample
	Timestamp time.Time
}

// FlowObservation is one sampled packet. It is consumed once to update the
// learning tables and never retained.
type FlowObservation struct {
	AgentID      string
	AgentAddr    string
	InputIndex   int32
	OutputIndex  int32
	HasInput     bool
	HasOutput    bool
	SrcMAC       string
	DstMAC       string
	SrcIP        string
	DstIP        string
	SamplingRate uint32
	Timestamp    time.Time
}

// Weight converts the observation's sampling rate into a confidence
// increment. A 1-in-N sampled flow contributes baseline/N, clamped to
// (0, 1], so high-rate sampling does not dominate the tables.
func (o *FlowObservation) Weight(baselineRate uint32) float64 {
	if baselineRate == 0 {
		baselineRate = 1
	}

	if o.SamplingRate == 0 {
		return 1
	}

	w := float64(baselineRate) / float64(o.SamplingRate)
	if w > 1 {
		return 1
	}

	return w
}

// CounterObservation is one interface statistics sample.
type CounterObservation struct {
	AgentID   string
	AgentAddr string
	IfIndex   int32
	Counters  models.InterfaceCounters
	Timestamp time.Time
}
