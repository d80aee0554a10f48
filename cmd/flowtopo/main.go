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

// flowtopo consumes sflowtool text output (usually piped in) and infers
// the switch-to-switch topology from overlapping MAC learning tables.
//
//	sflowtool | flowtopo -dot topology.dot
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/carverauto/flowtopo/pkg/config"
	"github.com/carverauto/flowtopo/pkg/ingest"
	"github.com/carverauto/flowtopo/pkg/lifecycle"
	"github.com/carverauto/flowtopo/pkg/logger"
	"github.com/carverauto/flowtopo/pkg/models"
	"github.com/carverauto/flowtopo/pkg/topology"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

var (
	errFailedToLoadConfig = fmt.Errorf("failed to load flowtopo configuration")
	errFailedToOpenInput  = fmt.Errorf("failed to open input")
)

func run() error {
	configFile := flag.String("config", "", "Path to flowtopo config file (optional)")
	inputFile := flag.String("input", "-", "sflowtool output to read, \"-\" for stdin")
	dotFile := flag.String("dot", "", "Write the final topology as a Graphviz DOT file")
	mininetFile := flag.String("mininet", "", "Write the final topology as a Mininet script")
	jsonFile := flag.String("json", "", "Write the final topology snapshot as JSON")

	flag.Parse()

	ctx := context.Background()

	cfg := ingest.DefaultConfig()

	if *configFile != "" {
		cfgLoader := config.NewConfig(nil)

		if err := cfgLoader.LoadAndValidate(ctx, *configFile, cfg); err != nil {
			return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
		}
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	mainLogger, err := lifecycle.CreateComponentLogger("flowtopo", logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	input := os.Stdin

	if *inputFile != "-" {
		f, err := os.Open(*inputFile)
		if err != nil {
			return fmt.Errorf("%w: %w", errFailedToOpenInput, err)
		}
		defer f.Close()

		input = f
	}

	var publisher topology.Publisher

	if cfg.NATS != nil {
		natsPublisher, err := topology.NewNATSPublisher(ctx, cfg.NATS, mainLogger)
		if err != nil {
			return fmt.Errorf("failed to create snapshot publisher: %w", err)
		}

		publisher = natsPublisher
	}

	svc, err := ingest.NewService(cfg, input, publisher, mainLogger)
	if err != nil {
		return fmt.Errorf("failed to create ingestion service: %w", err)
	}

	if err := lifecycle.Run(ctx, svc, mainLogger); err != nil {
		// a reader still blocked on an open pipe is not worth losing
		// the inferred graph over
		if !errors.Is(err, lifecycle.ErrServiceStopTimeout) {
			return err
		}

		mainLogger.Warn().Msg("Input still open at shutdown, exporting current state")
	}

	return writeExports(svc.Snapshot(time.Now()), *dotFile, *mininetFile, *jsonFile)
}

// writeExports renders the final snapshot into each requested format.
func writeExports(snap *models.TopologySnapshot, dotFile, mininetFile, jsonFile string) error {
	if dotFile != "" {
		if err := writeFile(dotFile, func(f *os.File) error {
			return topology.WriteDOT(f, snap)
		}); err != nil {
			return err
		}
	}

	if mininetFile != "" {
		if err := writeFile(mininetFile, func(f *os.File) error {
			return topology.WriteMininet(f, snap)
		}); err != nil {
			return err
		}
	}

	if jsonFile != "" {
		if err := writeFile(jsonFile, func(f *os.File) error {
			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")

			return enc.Encode(snap)
		}); err != nil {
			return err
		}
	}

	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		f.Close()

		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}
