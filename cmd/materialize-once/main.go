// materialize-once runs a single materialization pass immediately and exits.
// Useful for backfills and for checking a target date by hand.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/materialize-once
//
// Optional:
//   MATERIALIZE_NOW=2026-08-31T04:00:00Z   simulate the run instant
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"bitbucket.org/mmdatafocus/bakery_backend/workflow"
	"github.com/google/uuid"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()

	now := time.Now()
	if raw := os.Getenv("MATERIALIZE_NOW"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid MATERIALIZE_NOW %q: %v\n", raw, err)
			os.Exit(1)
		}
		now = parsed
	}

	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())
	runCtx, cancel := context.WithTimeout(ctx, config.MaterializeRunTimeout())
	defer cancel()

	result, err := workflow.MaterializeStandingOrders(runCtx, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
