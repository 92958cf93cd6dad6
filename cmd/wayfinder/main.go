// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.



package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/poiesic/wayfinder"
	"github.com/poiesic/wayfinder/compose"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/reindex"
	"github.com/poiesic/wayfinder/session"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	dbFlag := &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		Required: true,
	}

	return &cli.App{
		Name:  "wayfinder",
		Usage: "Query understanding and place ranking engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Minimum log level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "ontology",
				Usage: "Path to a YAML ontology merged over the built-in one",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "seed",
				Usage:  "Load places into the database",
				Action: seedCommand,
				Flags: []cli.Flag{
					dbFlag,
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSON file of places (array or one object after another); defaults to the demo corpus",
					},
				},
			},
			{
				Name:      "compose",
				Usage:     "Compose rails for a query",
				ArgsUsage: "[query...]",
				Action:    composeCommand,
				Flags: []cli.Flag{
					dbFlag,
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Ranking mode (light, vibe, surprise)",
						Value:   string(core.ModeLight),
					},
					&cli.Float64Flag{
						Name:  "lat",
						Usage: "Latitude of the user",
					},
					&cli.Float64Flag{
						Name:  "lng",
						Usage: "Longitude of the user",
					},
					&cli.StringFlag{
						Name:  "area",
						Usage: "Restrict results to an area",
					},
					&cli.BoolFlag{
						Name:  "quality",
						Usage: "Only return quality places",
					},
					&cli.StringFlag{
						Name:    "session",
						Aliases: []string{"s"},
						Usage:   "Session id for personalization; \"new\" generates one",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (text, json)",
						Value: "text",
					},
				},
			},
			{
				Name:      "extract",
				Usage:     "Show the slots found in a query",
				ArgsUsage: "[query...]",
				Action:    extractCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"d"},
						Usage:   "Path to BadgerDB database directory; enables co-occurrence fallbacks",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild stale tag bitsets of every place",
				Action: reindexCommand,
				Flags: []cli.Flag{
					dbFlag,
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of places to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N places",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func openEngine(c *cli.Context, dbPath string) (*wayfinder.Engine, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	opts := []wayfinder.Option{
		wayfinder.WithConfig(cfg),
		wayfinder.WithLogger(slog.Default()),
	}
	if path := c.String("ontology"); path != "" {
		opts = append(opts, wayfinder.WithOntologyFile(path))
	}
	if dbPath == "" {
		opts = append(opts, wayfinder.WithInMemory())
	}

	engine, err := wayfinder.NewEngine(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func seedCommand(c *cli.Context) error {
	ctx := context.Background()

	places := wayfinder.DemoPlaces()
	if path := c.String("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		if places, err = wayfinder.ReadPlaces(f); err != nil {
			return err
		}
	}

	engine, err := openEngine(c, c.String("db"))
	if err != nil {
		return err
	}
	defer engine.Close()

	added, err := engine.AddPlaces(ctx, places...)
	if err != nil {
		return fmt.Errorf("failed to add places: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Seeded %d places into %s\n", len(added), c.String("db"))
	return nil
}

func composeCommand(c *cli.Context) error {
	ctx := context.Background()

	format := strings.ToLower(c.String("format"))
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be one of text, json", format)
	}
	mode, err := core.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	req := compose.Request{
		Query:       strings.Join(c.Args().Slice(), " "),
		Mode:        mode,
		Area:        c.String("area"),
		QualityOnly: c.Bool("quality"),
		SessionID:   c.String("session"),
	}
	if req.SessionID == "new" {
		req.SessionID = session.NewID()
		fmt.Fprintf(c.App.ErrWriter, "Session: %s\n", req.SessionID)
	}
	if c.IsSet("lat") || c.IsSet("lng") {
		if !c.IsSet("lat") || !c.IsSet("lng") {
			return fmt.Errorf("lat and lng must be given together")
		}
		req.Geo = &core.GeoPoint{Lat: c.Float64("lat"), Lng: c.Float64("lng")}
	}

	engine, err := openEngine(c, c.String("db"))
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Compose(ctx, req)
	if err != nil {
		return fmt.Errorf("compose failed: %w", err)
	}

	if format == "json" {
		return writeJSON(c.App.Writer, result)
	}
	printRails(c.App.Writer, result)
	return nil
}

func extractCommand(c *cli.Context) error {
	q := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(q) == "" {
		return fmt.Errorf("a query is required")
	}

	engine, err := openEngine(c, c.String("db"))
	if err != nil {
		return err
	}
	defer engine.Close()

	return writeJSON(c.App.Writer, engine.Extract(context.Background(), q))
}

func reindexCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	engine, err := openEngine(c, c.String("db"))
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	if _, err := engine.Reindex(ctx, cfg, c.App.ErrWriter); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printRails(w io.Writer, result *core.ComposeResult) {
	if len(result.Rails) == 0 {
		fmt.Fprintln(w, "No places found")
		return
	}
	for _, rail := range result.Rails {
		fmt.Fprintf(w, "%s\n  %s\n", rail.Label, rail.Reason)
		for i, item := range rail.Items {
			fmt.Fprintf(w, "  %2d. %s", i+1, item.Name)
			if item.Why != "" {
				fmt.Fprintf(w, " (%s)", item.Why)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d ms, cached: %v\n", result.ProcessingTimeMs, result.CacheHit)
}

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// setupLogger installs the default slog logger on the app's error writer so
// that engine logs never interleave with rails printed to stdout.
func setupLogger(c *cli.Context) error {
	name := strings.ToLower(strings.TrimSpace(c.String("log-level")))
	level, ok := logLevels[name]
	if !ok {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", name)
	}

	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format := strings.ToLower(c.String("log-format")); format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
