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

package ingest

import "errors"

var (
	ErrInvalidJSON            = errors.New("invalid config JSON")
	ErrInvalidConfidenceFloor = errors.New("confidence_floor must be positive and below confidence_ceiling")
	ErrInvalidMovePenalty     = errors.New("move_penalty_factor must be in (0, 1)")
	ErrInvalidDecayRate       = errors.New("decay_rate must be non-negative")
	ErrInvalidDecayMode       = errors.New("decay_mode must be \"exponential\" or \"linear\"")
	ErrInvalidOverlap         = errors.New("overlap_threshold must be in (0, 1]")
	ErrInvalidCardinality     = errors.New("min_set_cardinality must be at least 1")
	ErrInvalidInterval        = errors.New("reconciliation_interval must be positive")
	ErrInvalidStaleTTL        = errors.New("agent_stale_ttl must be positive")
	ErrReaderRequired         = errors.New("input reader is required")
	ErrAlreadyStarted         = errors.New("ingestion service already started")
)
