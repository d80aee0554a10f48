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

// Package lifecycle manages service startup and shutdown.
package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/flowtopo/pkg/logger"
)

// Service is implemented by long-running components that are started once
// and stopped on shutdown.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

const defaultShutdownTimeout = 10 * time.Second

var ErrServiceStopTimeout = errors.New("service stop timed out")

// Run starts the service and blocks until the context is canceled, an
// interrupt signal arrives, or the service finishes on its own (a Done
// channel closing, for stream consumers that exhaust their input).
func Run(ctx context.Context, svc Service, log logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := svc.Start(ctx); err != nil {
		return err
	}

	var done <-chan struct{}
	if d, ok := svc.(interface{ Done() <-chan struct{} }); ok {
		done = d.Done()
	}

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case <-ctx.Done():
		log.Info().Msg("Context canceled, shutting down")
	case <-done:
		log.Info().Msg("Service finished, shutting down")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer stopCancel()

	if err := svc.Stop(stopCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrServiceStopTimeout
		}

		return err
	}

	return nil
}
