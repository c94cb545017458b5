package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/printflowhq/printshop_backend/config"
	"github.com/printflowhq/printshop_backend/models"
)

// Simple tool to requeue failed sync runs for a shop. It publishes one
// Pub/Sub trigger per failed (or partial) run so a live backend instance
// picks the shop up and reconciles it again.
func main() {
	shopID := flag.String("shop-id", "", "Required: shop id")
	since := flag.String("since", "24h", "Look back window for failed runs (Go duration)")
	includePartial := flag.Bool("include-partial", true, "Also requeue runs that finished partial")
	dryRun := flag.Bool("dry-run", true, "List matching runs only (no publish)")
	confirm := flag.String("confirm", "", "Type REQUEUE to proceed when dry-run=false")
	flag.Parse()

	if strings.TrimSpace(*shopID) == "" {
		fmt.Fprintln(os.Stderr, "--shop-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "REQUEUE" {
		fmt.Fprintln(os.Stderr, "set --confirm=REQUEUE to proceed")
		os.Exit(1)
	}

	window, err := time.ParseDuration(*since)
	if err != nil || window <= 0 {
		fmt.Fprintln(os.Stderr, "--since must be a positive Go duration, e.g. 24h")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	statuses := []string{models.SyncRunStatusFailed}
	if *includePartial {
		statuses = append(statuses, models.SyncRunStatusPartial)
	}

	var runs []models.SyncRun
	err = db.
		Where("shop_id = ? AND status IN ? AND created_at >= ?", *shopID, statuses, time.Now().Add(-window)).
		Order("id ASC").
		Find(&runs).Error
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load sync runs:", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("no matching runs")
		return
	}

	for _, run := range runs {
		fmt.Printf("run %d  status=%s  triggered_by=%s  synced=%d/%d  errors=%d  at=%s\n",
			run.ID, run.Status, run.TriggeredBy, run.RecordsSynced, run.RecordsTotal, run.ErrorCount,
			run.CreatedAt.Format(time.RFC3339))
	}
	if *dryRun {
		fmt.Printf("dry run: %d run(s) would be requeued\n", len(runs))
		return
	}

	ctx := context.Background()
	requeued := 0
	for _, run := range runs {
		if err := publishRun(ctx, run.ID, *shopID); err != nil {
			fmt.Fprintf(os.Stderr, "run %d: publish failed: %v\n", run.ID, err)
			continue
		}
		requeued++
	}
	fmt.Printf("requeued %d/%d run(s)\n", requeued, len(runs))
}
