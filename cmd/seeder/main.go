package main

import (
	"context"
	"flag"
	"iter"
	"log/slog"
	"os"
	"slices"

	"github.com/poiesic/wayfinder"
	"github.com/poiesic/wayfinder/core"
)

var (
	seedFileName = flag.String("src", "", "JSON file of places; defaults to the demo corpus")
	dbPath       = flag.String("db", "./places_db", "database directory")
	batchSize    = flag.Int("batch", 50, "places stored per write")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// placesFromFile reads every place in a JSON file.
func placesFromFile(filename string) ([]*core.Place, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return wayfinder.ReadPlaces(f)
}

// seedBatched stores places from source in batches of at most size.
func seedBatched(ctx context.Context, engine *wayfinder.Engine, source iter.Seq[[]*core.Place]) (int, error) {
	total := 0
	for batch := range source {
		added, err := engine.AddPlaces(ctx, batch...)
		if err != nil {
			return total, err
		}
		total += len(added)
		slog.Info("stored batch", "places", len(added), "total", total)
	}
	return total, nil
}

func main() {
	engine, err := wayfinder.NewEngine(*dbPath)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	places := wayfinder.DemoPlaces()
	if *seedFileName != "" {
		places, err = placesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	}

	total, err := seedBatched(context.Background(), engine, slices.Chunk(places, max(*batchSize, 1)))
	if err != nil {
		panic(err)
	}
	slog.Info("seeding complete", "places", total, "db", *dbPath)
}
