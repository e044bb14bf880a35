package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akarakonline-arch/hggzk-sub012/config"
	"github.com/akarakonline-arch/hggzk-sub012/indexsync"
)

func main() {
	unitID := flag.Uint("unit-id", 0, "Optional: rebuild a single unit")
	propertyID := flag.Uint("property-id", 0, "Optional: rebuild every unit of a property")
	all := flag.Bool("all", false, "Rebuild every unit")
	cleanup := flag.Bool("cleanup", false, "Remove index documents with no live source unit")
	stats := flag.Bool("stats", false, "Print index statistics and exit")
	batchSize := flag.Int("batch-size", 100, "Units per batch for --all")
	flag.Parse()

	if *unitID == 0 && *propertyID == 0 && !*all && !*cleanup && !*stats {
		fmt.Fprintln(os.Stderr, "one of --unit-id, --property-id, --all, --cleanup, --stats is required")
		os.Exit(1)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if config.GetRedisDB() == nil {
		fmt.Fprintln(os.Stderr, "index store not initialized")
		os.Exit(1)
	}

	logger := config.GetLogger()
	store := indexsync.NewRedisDocumentStore(config.GetRedisDB())
	worker := indexsync.NewWorker(db, store, config.GetRedisLock(), logger)
	rebuilder := indexsync.NewRebuilder(db, worker)

	if *stats {
		s, err := rebuilder.Statistics(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stats: %v\n", err)
			os.Exit(1)
		}
		for k, v := range s {
			fmt.Printf("%s: %v\n", k, v)
		}
		return
	}

	switch {
	case *unitID > 0:
		if err := rebuilder.RebuildUnit(ctx, *unitID); err != nil {
			fmt.Fprintf(os.Stderr, "rebuild unit %d: %v\n", *unitID, err)
			os.Exit(1)
		}
		fmt.Printf("unit %d rebuilt\n", *unitID)
	case *propertyID > 0:
		if err := rebuilder.RebuildPropertyUnits(ctx, *propertyID); err != nil {
			fmt.Fprintf(os.Stderr, "rebuild property %d: %v\n", *propertyID, err)
			os.Exit(1)
		}
		fmt.Printf("property %d units rebuilt\n", *propertyID)
	case *all:
		n, err := rebuilder.RebuildAll(ctx, *batchSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild all (%d done): %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("%d units rebuilt\n", n)
	}

	if *cleanup {
		removed, err := rebuilder.CleanupOrphans(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cleanup (%d removed): %v\n", removed, err)
			os.Exit(1)
		}
		fmt.Printf("%d orphaned documents removed\n", removed)
	}
}
