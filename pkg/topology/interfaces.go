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

//go:generate mockgen -destination=mock_publisher.go -package=topology github.com/carverauto/flowtopo/pkg/topology Publisher

package topology

import (
	"context"

	"github.com/carverauto/flowtopo/pkg/models"
)

// Publisher pushes topology snapshots to downstream consumers.
type Publisher interface {
	// PublishSnapshot delivers one point-in-time snapshot.
	PublishSnapshot(ctx context.Context, snap *models.TopologySnapshot) error

	// Close releases the underlying connection.
	Close() error
}
