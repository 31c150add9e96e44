// Command outbox-inspect prints outbox state for manual reconciliation: the
// current unpublished backlog and the dead letter queue.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/lucasvieira/planbook-backend/pkg/config"
	"github.com/lucasvieira/planbook-backend/pkg/db"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
	"github.com/lucasvieira/planbook-backend/pkg/outbox"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "outbox-inspect"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "pending", "inspect command: pending|dlq")
	limit := flag.Int("limit", 50, "maximum rows to print")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "outbox-inspect",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	enc := json.NewEncoder(os.Stdout)

	switch *cmd {
	case "pending":
		rows, err := outbox.NewRepository(dbClient.DB()).FetchUnpublished(*limit)
		if err != nil {
			logg.Error(ctx, "failed to list pending events", err)
			os.Exit(1)
		}
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				logg.Error(ctx, "failed to encode row", err)
				os.Exit(1)
			}
		}
		fmt.Fprintf(os.Stderr, "%d pending events\n", len(rows))

	case "dlq":
		rows, err := outbox.NewDLQRepository(dbClient.DB()).List(*limit)
		if err != nil {
			logg.Error(ctx, "failed to list dead letters", err)
			os.Exit(1)
		}
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				logg.Error(ctx, "failed to encode row", err)
				os.Exit(1)
			}
		}
		fmt.Fprintf(os.Stderr, "%d dead-lettered events\n", len(rows))

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", *cmd)
		os.Exit(1)
	}
}
