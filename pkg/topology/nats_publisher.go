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
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig configures the optional JetStream snapshot publisher.
type NATSConfig struct {
	URL        string `json:"url"`
	StreamName string `json:"stream_name"`
	Subject    string `json:"subject"`
}

// Validate ensures the configuration is usable.
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return ErrNATSURLRequired
	}

	if c.StreamName == "" {
		return ErrNATSStreamRequired
	}

	return nil
}

// NATSPublisher implements Publisher over a JetStream stream so renderers
// and stores can consume snapshots without coupling to this process.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	log     logger.Logger
}

// NewNATSPublisher connects to NATS and ensures the snapshot stream exists.
func NewNATSPublisher(ctx context.Context, cfg *NATSConfig, log logger.Logger) (*NATSPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	subject := cfg.Subject
	if subject == "" {
		subject = cfg.StreamName
	}

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, err
	}

	_, err = js.Stream(ctx, cfg.StreamName)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		sc := jetstream.StreamConfig{
			Name:     cfg.StreamName,
			Subjects: []string{subject},
		}

		_, err = js.CreateOrUpdateStream(ctx, sc)
		if err != nil {
			nc.Close()

			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
		}
	} else if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to get stream %s: %w", cfg.StreamName, err)
	}

	log.Info().Str("stream", cfg.StreamName).Str("subject", subject).Msg("Snapshot publisher connected")

	return &NATSPublisher{nc: nc, js: js, subject: subject, log: log}, nil
}

// PublishSnapshot marshals the snapshot and publishes it to the stream.
func (p *NATSPublisher) PublishSnapshot(ctx context.Context, snap *models.TopologySnapshot) error {
	if p.js == nil {
		return ErrPublisherNotConnected
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	p.log.Debug().
		Str("snapshot_id", snap.SnapshotID).
		Int("edges", len(snap.Edges)).
		Msg("Published topology snapshot")

	return nil
}

// Close drains the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}

	return nil
}
