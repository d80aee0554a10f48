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

package mactable

import "errors"

var (
	// ErrCapacityExceeded rejects a sighting for a new MAC once the
	// per-agent entry limit is reached. Existing sightings keep updating.
	ErrCapacityExceeded = errors.New("mac table capacity exceeded")

	ErrInvalidWeight  = errors.New("sample weight must be positive")
	ErrInvalidIfIndex = errors.New("invalid interface index")
)
