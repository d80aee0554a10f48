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
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowDatagram = `startDatagram =================================
datagramSourceIP 127.0.0.1
agent 10.0.0.13
unixSecondsUTC 1414172645
startSample ----------------------
sampleType FLOWSAMPLE
sourceId 2:1012
meanSkipCount 128
inputPort 3
outputPort 1
srcMAC 00163e0000aa
dstMAC 00:16:3E:00:00:BB
srcIP 10.0.0.1
dstIP 10.0.0.2
endSample   ----------------------
endDatagram =================================
`

const counterDatagram = `startDatagram =================================
agent 10.0.0.13
unixSecondsUTC 1414172650
startSample ----------------------
sampleType COUNTERSSAMPLE
sourceId 2:1012
ifIndex 3
ifSpeed 10000000
ifInOctets 209721
ifOutOctets 13473
ifInUcastPkts 1593
ifOutUcastPkts 163
endSample   ----------------------
endDatagram =================================
`

func TestScannerParsesFlowSample(t *testing.T) {
	sc := NewScanner(strings.NewReader(flowDatagram), logger.NewTestLogger())

	dg, err := sc.Next()
	require.NoError(t, err)
	require.Len(t, dg.Samples, 1)

	assert.Equal(t, "10.0.0.13", dg.AgentAddr)
	assert.Equal(t, time.Unix(1414172645, 0).UTC(), dg.Timestamp)

	obs, err := dg.Samples[0].Observation(dg, time.Now())
	require.NoError(t, err)

	flow, ok := obs.(*FlowObservation)
	require.True(t, ok)

	assert.Equal(t, "2:1012", flow.AgentID)
	assert.Equal(t, int32(3), flow.InputIndex)
	assert.Equal(t, int32(1), flow.OutputIndex)
	assert.True(t, flow.HasInput)
	assert.True(t, flow.HasOutput)
	assert.Equal(t, "00163e0000aa", flow.SrcMAC)
	assert.Equal(t, "00163e0000bb", flow.DstMAC, "separators stripped, lowercased")
	assert.Equal(t, uint32(128), flow.SamplingRate)

	_, err = sc.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerParsesCounterSample(t *testing.T) {
	sc := NewScanner(strings.NewReader(counterDatagram), logger.NewTestLogger())

	dg, err := sc.Next()
	require.NoError(t, err)
	require.Len(t, dg.Samples, 1)

	obs, err := dg.Samples[0].Observation(dg, time.Now())
	require.NoError(t, err)

	counter, ok := obs.(*CounterObservation)
	require.True(t, ok)

	assert.Equal(t, "2:1012", counter.AgentID)
	assert.Equal(t, int32(3), counter.IfIndex)
	assert.Equal(t, uint64(209721), counter.Counters.InOctets)
	assert.Equal(t, uint64(13473), counter.Counters.OutOctets)
	assert.Equal(t, uint64(10000000), counter.Counters.IfSpeed)
}

func TestScannerSkipsUnknownSampleType(t *testing.T) {
	input := strings.ReplaceAll(flowDatagram, "FLOWSAMPLE", "EXPANDEDFLOW")
	sc := NewScanner(strings.NewReader(input), logger.NewTestLogger())

	dg, err := sc.Next()
	require.NoError(t, err)
	require.Len(t, dg.Samples, 1)

	obs, err := dg.Samples[0].Observation(dg, time.Now())
	require.NoError(t, err)
	assert.Nil(t, obs)
}

func TestScannerRecoversAfterTruncatedDatagram(t *testing.T) {
	truncated := `startDatagram =================================
agent 10.0.0.1
startSample ----------------------
sampleType FLOWSAMPLE
` // never closed; next block starts fresh

	sc := NewScanner(strings.NewReader(truncated+flowDatagram), logger.NewTestLogger())

	// dropping the partial block is logged, the good datagram still parses
	dg, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.13", dg.AgentAddr)
}

func TestScannerTruncatedAtEOF(t *testing.T) {
	input := "startDatagram ====\nagent 10.0.0.1\n"
	sc := NewScanner(strings.NewReader(input), logger.NewTestLogger())

	_, err := sc.Next()
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrTruncatedDatagram)

	_, err = sc.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerIgnoresNoiseBetweenDatagrams(t *testing.T) {
	input := "sflowtool version 5.0\n\n" + flowDatagram
	sc := NewScanner(strings.NewReader(input), logger.NewTestLogger())

	dg, err := sc.Next()
	require.NoError(t, err)
	assert.Len(t, dg.Samples, 1)
}

func TestFlowObservationMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		strip string
	}{
		{name: "no input port", strip: "inputPort 3\n"},
		{name: "no output port", strip: "outputPort 1\n"},
		{name: "no source mac", strip: "srcMAC 00163e0000aa\n"},
		{name: "no dest mac", strip: "dstMAC 00:16:3E:00:00:BB\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.Replace(flowDatagram, tt.strip, "", 1)
			sc := NewScanner(strings.NewReader(input), logger.NewTestLogger())

			dg, err := sc.Next()
			require.NoError(t, err)

			_, err = dg.Samples[0].Observation(dg, time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingField)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParsePortSpecialValues(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantIdx  int32
		wantUse  bool
		wantErr  bool
		errMatch error
	}{
		{name: "plain index", value: "17", wantIdx: 17, wantUse: true},
		{name: "multiple", value: "multiple 3", wantUse: false},
		{name: "drop code", value: "dropCode 256", wantUse: false},
		{name: "garbage", value: "eth0", wantErr: true, errMatch: ErrInvalidField},
		{name: "empty", value: "", wantErr: true, errMatch: ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, usable, err := parsePort(tt.value)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.errMatch)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantUse, usable)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare hex", input: "00163E0000AA", want: "00163e0000aa"},
		{name: "colons", input: "00:16:3e:00:00:aa", want: "00163e0000aa"},
		{name: "dashes", input: "00-16-3e-00-00-aa", want: "00163e0000aa"},
		{name: "too short", input: "00163e", wantErr: true},
		{name: "non hex", input: "00163e0000zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeMAC(tt.input)

			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlowObservationWeight(t *testing.T) {
	tests := []struct {
		name     string
		rate     uint32
		baseline uint32
		want     float64
	}{
		{name: "at baseline", rate: 128, baseline: 128, want: 1.0},
		{name: "sparser than baseline", rate: 512, baseline: 128, want: 0.25},
		{name: "denser clamps to one", rate: 64, baseline: 128, want: 1.0},
		{name: "unknown rate counts full", rate: 0, baseline: 128, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &FlowObservation{SamplingRate: tt.rate}
			assert.InDelta(t, tt.want, o.Weight(tt.baseline), 1e-9)
		})
	}
}

func TestScannerSkipsOversizedLineBetweenDatagrams(t *testing.T) {
	input := strings.Repeat("x", maxLineBytes+1) + "\n" + flowDatagram
	sc := NewScanner(strings.NewReader(input), logger.NewTestLogger())

	dg, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.13", dg.AgentAddr)

	_, err = sc.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerOversizedLineDropsOnlyItsDatagram(t *testing.T) {
	poisoned := "startDatagram ====\nagent 10.0.0.1\n" + strings.Repeat("x", maxLineBytes+1) + "\nendDatagram ====\n"
	sc := NewScanner(strings.NewReader(poisoned+flowDatagram), logger.NewTestLogger())

	_, err := sc.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.ErrorIs(t, err, ErrLineTooLong)

	// the datagrams after the poisoned block still parse
	dg, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.13", dg.AgentAddr)

	_, err = sc.Next()
	assert.Equal(t, io.EOF, err)
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestScannerSurfacesReadErrors(t *testing.T) {
	readErr := errors.New("connection reset")
	sc := NewScanner(&failingReader{err: readErr}, logger.NewTestLogger())

	_, err := sc.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, readErr)
	assert.False(t, errors.Is(err, ErrParse))

	// the failure sticks; it is never downgraded to a clean EOF
	_, err = sc.Next()
	assert.ErrorIs(t, err, readErr)
}
