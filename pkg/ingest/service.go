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

// Package ingest runs the pipeline: it feeds the parsed sflowtool stream
// through the registry, the learning tables and the inference engine, and
// periodically reconciles and publishes the topology.
package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/mactable"
	"github.com/carverauto/flowtopo/pkg/models"
	"github.com/carverauto/flowtopo/pkg/registry"
	"github.com/carverauto/flowtopo/pkg/sflow"
	"github.com/carverauto/flowtopo/pkg/topology"
)

// Service consumes one sflowtool text stream. Observations are applied
// strictly in arrival order; reconciliation runs on a ticker beside the
// read loop.
type Service struct {
	cfg       *Config
	input     io.Reader
	registry  *registry.Registry
	tables    *mactable.Tables
	engine    *topology.Engine
	processor *Processor
	publisher topology.Publisher
	log       logger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewService builds the pipeline from a validated config. publisher may be
// nil when no downstream consumer is configured.
func NewService(cfg *Config, input io.Reader, publisher topology.Publisher, log logger.Logger) (*Service, error) {
	if input == nil {
		return nil, ErrReaderRequired
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := registry.NewRegistry(cfg.MaxAgents, cfg.MaxInterfacesPerAgent, log)
	tables := mactable.NewTables(cfg.Policy())

	engine, err := topology.NewEngine(cfg.TopologyConfig(), reg, tables, log)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		input:     input,
		registry:  reg,
		tables:    tables,
		engine:    engine,
		processor: NewProcessor(reg, tables, engine, cfg.BaselineSamplingRate, log),
		publisher: publisher,
		log:       log,
		done:      make(chan struct{}),
	}, nil
}

// Engine exposes the inference engine for exports.
func (s *Service) Engine() *topology.Engine {
	return s.engine
}

// Registry exposes the agent registry.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Done closes when the input stream is exhausted and the final
// reconciliation has run.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Start launches the read loop and the reconciliation ticker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)

	go s.readLoop(runCtx)
	go s.reconcileLoop(runCtx)

	s.log.Info().
		Dur("reconcile_interval", s.cfg.ReconcileInterval).
		Uint32("baseline_sampling_rate", s.cfg.BaselineSamplingRate).
		Msg("Ingestion started")

	return nil
}

// Stop cancels the loops and closes the publisher.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	finished := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close publisher")
		}
	}

	return nil
}

// Snapshot returns the current inferred topology.
func (s *Service) Snapshot(now time.Time) *models.TopologySnapshot {
	return s.engine.Snapshot(now)
}

func (s *Service) readLoop(ctx context.Context) {
	defer s.wg.Done()

	scanner := sflow.NewScanner(s.input, s.log)
	datagrams := 0

	for {
		if ctx.Err() != nil {
			return
		}

		dg, err := scanner.Next()
		if err != nil {
			var perr *sflow.ParseError
			if errors.As(err, &perr) {
				// malformed block: skip it, the stream continues
				s.log.Warn().Err(perr).Int("line", perr.Line).Msg("Dropping malformed datagram")

				continue
			}

			if errors.Is(err, io.EOF) {
				s.log.Info().Int("datagrams", datagrams).Msg("Input stream exhausted")
				s.finish()

				return
			}

			s.log.Error().Err(err).Msg("Stream read failed")
			s.finish()

			return
		}

		datagrams++
		s.applyDatagram(dg)
	}
}

// applyDatagram applies each sample in order. A bad sample is dropped
// without taking down its siblings.
func (s *Service) applyDatagram(dg *sflow.Datagram) {
	now := time.Now()

	for i := range dg.Samples {
		obs, err := dg.Samples[i].Observation(dg, now)
		if err != nil {
			s.log.Warn().Err(err).Str("agent", dg.AgentAddr).Msg("Dropping malformed sample")

			continue
		}

		if obs == nil {
			continue
		}

		if err := s.processor.Apply(obs); err != nil {
			s.log.Warn().Err(err).Msg("Failed to apply observation")
		}
	}
}

func (s *Service) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case now := <-ticker.C:
			s.reconcile(ctx, now)
		}
	}
}

func (s *Service) reconcile(ctx context.Context, now time.Time) {
	evicted := s.tables.Evict(now)
	stats := s.engine.Reconcile(now)

	s.log.Info().
		Int("interfaces", stats.Interfaces).
		Int("candidates", stats.Candidates).
		Int("edges", stats.Edges).
		Int("hosts", stats.Hosts).
		Int("ambiguous", stats.Ambiguous).
		Int("pruned", stats.Pruned).
		Int("evicted_macs", evicted).
		Msg("Reconciled topology")

	if s.publisher == nil {
		return
	}

	snap := s.engine.Snapshot(now)
	if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
		s.log.Error().Err(err).Msg("Failed to publish snapshot")
	}
}

// finish runs the final reconciliation and signals completion.
func (s *Service) finish() {
	s.reconcile(context.Background(), time.Now())
	close(s.done)
}
