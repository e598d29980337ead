// Command locate is the CLI driver for the hypocenter location engine:
// it reads a JSON event request, runs the locator, and writes the
// JSON location response, optionally persisting the run's audit trail
// to a sqlite database. It sits outside the core's scope (spec.md §1
// explicitly calls the CLI driver and I/O out of core scope) but is
// required for a runnable repository, grounded on cmd/lidar/lidar.go's
// package-scope flag-variable style.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/hypocenter/internal/api"
	"github.com/banshee-data/hypocenter/internal/audit"
	"github.com/banshee-data/hypocenter/internal/config"
	"github.com/banshee-data/hypocenter/internal/locate"
	"github.com/banshee-data/hypocenter/internal/refdata"
	"github.com/banshee-data/hypocenter/internal/ttime"
)

var (
	inputPath  = flag.String("in", "", "path to the JSON event request (default: stdin)")
	outputPath = flag.String("out", "", "path to write the JSON location response (default: stdout)")
	tuningPath = flag.String("tuning", "", "optional path to a tuning config JSON file overriding stage constants")
	zonesPath  = flag.String("zones", "", "optional path to a zone-statistics JSON file")
	auditDB    = flag.String("audit-db", "", "optional path to a sqlite audit database to record this run's trail")
	serve      = flag.String("listen", "", "if set, run as an HTTP server on this address instead of a one-shot CLI run")
)

func main() {
	flag.Parse()

	if *tuningPath != "" {
		cfg, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("loading tuning config: %v", err)
		}
		locate.ApplyTuning(cfg)
	}

	var zones *refdata.ZoneStatistics
	if *zonesPath != "" {
		z, err := refdata.LoadZoneStatistics(*zonesPath)
		if err != nil {
			log.Fatalf("loading zone statistics: %v", err)
		}
		zones = z
	}

	oracle := ttime.NewReference()
	server := api.NewServer(oracle, nil, zones)

	if *serve != "" {
		log.Printf("listening on %s", *serve)
		if err := runServer(server, *serve); err != nil {
			log.Fatalf("server exited: %v", err)
		}
		return
	}

	if err := runOnce(server); err != nil {
		log.Fatalf("location run failed: %v", err)
	}
}

func runOnce(server *api.Server) error {
	raw, err := readInput(*inputPath)
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	var req api.EventRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parsing request: %w", err)
	}

	start := time.Now()
	event, err := api.BuildEvent(req, server.Oracle, server.Cratons, server.Zones)
	if err != nil {
		return fmt.Errorf("building event: %w", err)
	}
	result, err := locate.RunLocator(event)
	if err != nil {
		return fmt.Errorf("running locator: %w", err)
	}
	resp := api.ToResponse(event, result)
	log.Printf("located event in %s: exit=%d quality=%q", time.Since(start), resp.ExitCode, resp.Quality)

	if *auditDB != "" {
		if err := recordAudit(event, result, resp.ExitCode); err != nil {
			log.Printf("warning: failed to record audit trail: %v", err)
		}
	}

	return writeOutput(*outputPath, resp)
}

func recordAudit(event *locate.Event, result *locate.LocateResult, exitCode int) error {
	db, err := audit.Open(*auditDB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.MigrateUp(); err != nil {
		return err
	}
	runID := audit.NewRunID()
	return db.RecordRun(runID, time.Now().Unix(), event.Audit, result.CloseOut, exitCode)
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, resp *api.EventResponse) error {
	raw, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	if path == "" {
		_, err = os.Stdout.Write(append(raw, '\n'))
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
