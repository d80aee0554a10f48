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

import "errors"

var (
	ErrRegistryRequired      = errors.New("agent registry is required")
	ErrTablesRequired        = errors.New("mac learning tables are required")
	ErrInvalidOverlap        = errors.New("overlap threshold must be in (0, 1]")
	ErrInvalidCardinality    = errors.New("minimum set cardinality must be at least 1")
	ErrInvalidFloor          = errors.New("confidence floor must be in (0, 1)")
	ErrNATSURLRequired       = errors.New("nats url is required")
	ErrNATSStreamRequired    = errors.New("nats stream name is required")
	ErrPublisherNotConnected = errors.New("publisher is not connected")
)
