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

// Package sflow parses the line-oriented text stream produced by sflowtool
// into typed flow and counter observations.
package sflow

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
)

const maxLineBytes = 1 << 20

// Scanner reads startDatagram/endDatagram blocks from a stream. It is not
// safe for concurrent use; the ingestion pipeline owns it exclusively.
type Scanner struct {
	r    *bufio.Reader
	log  logger.Logger
	line int
	err  error
}

// NewScanner wraps r. Lines longer than 1MiB are discarded without
// disturbing the rest of the stream.
func NewScanner(r io.Reader, log logger.Logger) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024), log: log}
}

// Line returns the number of lines consumed so far.
func (s *Scanner) Line() int {
	return s.line
}

// readLine returns the next line without its terminator. An oversized line
// is drained to its newline and reported as ErrLineTooLong; read failures
// from the underlying stream come back unwrapped.
func (s *Scanner) readLine() (string, error) {
	var (
		buf      []byte
		overlong bool
	)

	for {
		chunk, err := s.r.ReadSlice('\n')

		switch {
		case overlong:
		case len(buf)+len(chunk) > maxLineBytes:
			overlong = true
			buf = nil
		default:
			buf = append(buf, chunk...)
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		if errors.Is(err, io.EOF) && len(buf) == 0 && !overlong {
			return "", io.EOF
		}

		s.line++

		if overlong {
			return "", ErrLineTooLong
		}

		return strings.TrimSuffix(string(buf), "\n"), nil
	}
}

// Next returns the next complete datagram. It returns io.EOF at end of
// stream and a *ParseError for a malformed block; after a ParseError the
// scanner is still usable and resumes at the next datagram. Only a genuine
// read failure ends the stream early, and it is returned as-is so callers
// can tell it apart from parse noise.
func (s *Scanner) Next() (*Datagram, error) {
	if s.err != nil {
		return nil, s.err
	}

	var lines []string

	startLine := 0
	inDatagram := false

	for {
		line, err := s.readLine()

		switch {
		case errors.Is(err, ErrLineTooLong):
			s.log.Warn().Int("line", s.line).Msg("Discarding oversized line")

			if inDatagram {
				return nil, newParseError(s.line, "", ErrLineTooLong)
			}

			continue
		case errors.Is(err, io.EOF):
			s.err = io.EOF

			if inDatagram {
				return nil, newParseError(s.line, "", ErrTruncatedDatagram)
			}

			return nil, io.EOF
		case err != nil:
			s.err = err
			return nil, fmt.Errorf("stream read failed: %w", err)
		}

		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}

		token, _, _ := strings.Cut(line, " ")

		switch {
		case token == "startDatagram":
			if inDatagram {
				s.log.Warn().Int("line", s.line).Msg("Datagram restarted before endDatagram, dropping partial block")
			}

			inDatagram = true
			startLine = s.line
			lines = lines[:0]
		case !inDatagram:
			// noise between datagrams, e.g. a relay banner
			s.log.Debug().Int("line", s.line).Msg("Skipping line outside datagram")
		case token == "endDatagram":
			return parseDatagram(lines, startLine)
		default:
			lines = append(lines, line)
		}
	}
}

// parseDatagram splits a block into datagram-level params and samples.
func parseDatagram(lines []string, startLine int) (*Datagram, error) {
	dg := &Datagram{Params: make(map[string]string)}

	var cur *Sample

	for i, line := range lines {
		lineNo := startLine + 1 + i

		token, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)

		switch {
		case cur != nil && token == "endSample":
			dg.Samples = append(dg.Samples, *cur)
			cur = nil
		case cur != nil:
			cur.Fields[token] = value
		case token == "startSample":
			cur = &Sample{Fields: make(map[string]string), startLine: lineNo}
		default:
			dg.Params[token] = value
		}
	}

	if cur != nil {
		return nil, newParseError(cur.startLine, "", ErrTruncatedDatagram)
	}

	dg.AgentAddr = dg.Params[fieldAgent]

	if v := dg.Params[fieldUnixSeconds]; v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, newParseError(startLine, fieldUnixSeconds, ErrInvalidField)
		}

		dg.Timestamp = time.Unix(secs, 0).UTC()
	}

	return dg, nil
}

// Observation classifies the sample. It returns (nil, nil) for record types
// the topology engine does not consume.
func (smp *Sample) Observation(dg *Datagram, now time.Time) (Observation, error) {
	ts := dg.Timestamp
	if ts.IsZero() {
		ts = now
	}

	agentID := smp.Fields[fieldSourceID]
	if agentID == "" {
		agentID = dg.AgentAddr
	}

	if agentID == "" {
		return nil, newParseError(smp.startLine, fieldSourceID, ErrMissingField)
	}

	switch smp.Fields[fieldSampleType] {
	case sampleTypeFlow:
		return smp.flowObservation(dg, agentID, ts)
	case sampleTypeCounter:
		return smp.counterObservation(dg, agentID, ts)
	default:
		return nil, nil
	}
}

// Observation is either a *FlowObservation or a *CounterObservation.
type Observation interface {
	Kind() RecordKind
}

func (*FlowObservation) Kind() RecordKind    { return RecordFlow }
func (*CounterObservation) Kind() RecordKind { return RecordCounter }

func (smp *Sample) flowObservation(dg *Datagram, agentID string, ts time.Time) (Observation, error) {
	obs := &FlowObservation{
		AgentID:   agentID,
		AgentAddr: dg.AgentAddr,
		Timestamp: ts,
		SrcIP:     smp.Fields[fieldSrcIP],
		DstIP:     smp.Fields[fieldDstIP],
	}

	for _, f := range []string{fieldInputPort, fieldOutputPort, fieldSrcMAC, fieldDstMAC} {
		if _, ok := smp.Fields[f]; !ok {
			return nil, newParseError(smp.startLine, f, ErrMissingField)
		}
	}

	var err error

	obs.SrcMAC, err = normalizeMAC(smp.Fields[fieldSrcMAC])
	if err != nil {
		return nil, newParseError(smp.startLine, fieldSrcMAC, err)
	}

	obs.DstMAC, err = normalizeMAC(smp.Fields[fieldDstMAC])
	if err != nil {
		return nil, newParseError(smp.startLine, fieldDstMAC, err)
	}

	obs.InputIndex, obs.HasInput, err = parsePort(smp.Fields[fieldInputPort])
	if err != nil {
		return nil, newParseError(smp.startLine, fieldInputPort, err)
	}

	obs.OutputIndex, obs.HasOutput, err = parsePort(smp.Fields[fieldOutputPort])
	if err != nil {
		return nil, newParseError(smp.startLine, fieldOutputPort, err)
	}

	if v := smp.Fields[fieldMeanSkip]; v != "" {
		rate, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, newParseError(smp.startLine, fieldMeanSkip, ErrInvalidField)
		}

		obs.SamplingRate = uint32(rate)
	}

	return obs, nil
}

func (smp *Sample) counterObservation(dg *Datagram, agentID string, ts time.Time) (Observation, error) {
	v, ok := smp.Fields[fieldIfIndex]
	if !ok {
		return nil, newParseError(smp.startLine, fieldIfIndex, ErrMissingField)
	}

	idx, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return nil, newParseError(smp.startLine, fieldIfIndex, ErrInvalidField)
	}

	obs := &CounterObservation{
		AgentID:   agentID,
		AgentAddr: dg.AgentAddr,
		IfIndex:   int32(idx),
		Timestamp: ts,
	}

	counters := []struct {
		field string
		dst   *uint64
	}{
		{fieldIfInOctets, &obs.Counters.InOctets},
		{fieldIfOutOctets, &obs.Counters.OutOctets},
		{fieldIfInUcast, &obs.Counters.InUcastPkts},
		{fieldIfOutUcast, &obs.Counters.OutUcastPkts},
		{fieldIfSpeed, &obs.Counters.IfSpeed},
	}

	for _, c := range counters {
		raw, ok := smp.Fields[c.field]
		if !ok {
			continue
		}

		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, newParseError(smp.startLine, c.field, ErrInvalidField)
		}

		*c.dst = n
	}

	return obs, nil
}

// parsePort returns (index, usable, error). sflowtool emits values such as
// "multiple 3" or "dropCode 256" for ports it cannot attribute; those are
// structurally valid but carry no interface index.
func parsePort(value string) (int32, bool, error) {
	if value == "" {
		return 0, false, ErrMissingField
	}

	for _, prefix := range portIgnorePrefixes {
		if strings.HasPrefix(value, prefix) {
			return 0, false, nil
		}
	}

	idx, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, false, ErrInvalidField
	}

	return int32(idx), true, nil
}

// normalizeMAC lowercases and strips separators, yielding the 12-hex-digit
// form the learning tables key on.
func normalizeMAC(value string) (string, error) {
	mac := strings.ToLower(strings.ReplaceAll(value, ":", ""))
	mac = strings.ReplaceAll(mac, "-", "")

	if len(mac) != 12 {
		return "", ErrInvalidField
	}

	for _, r := range mac {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", ErrInvalidField
		}
	}

	return mac, nil
}
