// Command seihrd runs household SEIHRD epidemic scenarios, stores the results
// and optionally serves them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/talgya/seihrd/internal/api"
	"github.com/talgya/seihrd/internal/config"
	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/persistence"
	"github.com/talgya/seihrd/internal/report"
)

func main() {
	configPath := flag.String("config", "", "TOML config file")
	preset := flag.String("preset", "", "comma-separated isolation presets to run, or \"all\"")
	dbPath := flag.String("db", "", "SQLite database path (overrides config; \"none\" disables storage)")
	csvDir := flag.String("csv", "", "directory to write one <scenario>.csv series per run")
	serve := flag.Bool("serve", false, "serve the HTTP API after the runs finish")
	port := flag.Int("port", 0, "HTTP API port (overrides config)")
	seed := flag.Int64("seed", 0, "run seed (overrides config; 0 keeps the configured seed)")
	listPresets := flag.Bool("list-presets", false, "print the built-in presets and exit")
	flag.Parse()

	if *listPresets {
		for _, p := range config.Presets() {
			fmt.Printf("%-20s contacts=%d probability=%.4f", p.Name, p.ContactCount, p.ContactProbability)
			if p.Steps > 0 {
				fmt.Printf(" steps=%d", p.Steps)
			}
			fmt.Println()
		}
		return
	}

	// ── Configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *preset != "" {
		cfg, err = cfg.WithPreset(strings.Split(*preset, ",")...)
		if err != nil {
			slog.Error("invalid preset", "error", err)
			os.Exit(1)
		}
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if strings.EqualFold(cfg.DBPath, "none") {
		cfg.DBPath = ""
	}
	if *port != 0 {
		cfg.APIPort = *port
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("invalid log settings", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	scenarios, err := cfg.Scenarios()
	if err != nil {
		slog.Error("failed to resolve scenarios", "error", err)
		os.Exit(1)
	}

	// ── Database ─────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.DBPath != "" {
		db, err = openDB(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.DBPath)
	}

	if *csvDir != "" {
		if err := os.MkdirAll(*csvDir, 0755); err != nil {
			slog.Error("failed to create csv directory", "error", err)
			os.Exit(1)
		}
	}

	// ── Runs ─────────────────────────────────────────────────────────
	for _, sc := range scenarios {
		if err := runScenario(sc, db, *csvDir); err != nil {
			slog.Error("scenario failed", "scenario", sc.Name, "error", err)
			os.Exit(1)
		}
	}

	if !*serve {
		return
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	server := &api.Server{
		DB:       db,
		Base:     cfg,
		Port:     cfg.APIPort,
		AdminKey: cfg.AdminKey,
	}
	server.Start()
	fmt.Printf("API: http://localhost:%d/api/v1/status (Ctrl+C to stop)\n", cfg.APIPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
}

func runScenario(sc config.Scenario, db *persistence.DB, csvDir string) error {
	res, err := sc.Run()
	if err != nil {
		return err
	}

	summary := report.Summarize(res.Initial, res.Series, sc.Engine.Progression.HospitalCapacity)
	fmt.Print(summary.Format(sc.Name))

	if csvDir != "" {
		path, err := csvPath(csvDir, sc.Name)
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		if err := report.WriteCSV(f, append([]disease.Counts{res.Initial}, res.Series...)); err != nil {
			f.Close()
			return fmt.Errorf("write csv: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		slog.Info("series written", "path", path)
	}

	if db != nil {
		run, err := db.SaveRun(sc.Name, sc, res)
		if err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		fmt.Printf("  stored as          %s\n", run.ID)
	}
	return nil
}

// openDB creates the database's parent directory if needed and opens it.
func openDB(path string) (*persistence.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return persistence.Open(path)
}

// csvPath names the series file for a scenario inside dir. The scenario name
// must be a plain file name.
func csvPath(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("scenario name %q cannot be used as a file name", name)
	}
	return filepath.Join(dir, name+".csv"), nil
}
