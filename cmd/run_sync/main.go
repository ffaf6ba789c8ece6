package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go-datasync/internal/app"
	sync_feature "go-datasync/internal/features/sync"

	"go.uber.org/fx"
)

// run_sync performs one sync of a profile and prints the resulting run.
func main() {
	profileID := flag.String("profile", "", "ID of the sync profile to run")
	timeout := flag.Duration("timeout", time.Hour, "abort the run after this long")
	flag.Parse()

	if *profileID == "" {
		fmt.Fprintln(os.Stderr, "usage: run_sync -profile <id>")
		os.Exit(2)
	}

	var syncService sync_feature.SyncService
	deps := fx.New(app.Module, fx.Populate(&syncService))

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := deps.Start(startCtx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	ctx, cancelRun := context.WithTimeout(context.Background(), *timeout)
	run, runErr := syncService.RunSync(ctx, *profileID)
	cancelRun()

	if run != nil {
		out, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(out))
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	if err := deps.Stop(stopCtx); err != nil {
		log.Printf("Failed to stop cleanly: %v", err)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", runErr)
		os.Exit(1)
	}
}
