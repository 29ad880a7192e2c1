package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/app/migrate"
	"github.com/YoubetDao/MCPForge-Backend-sub000/pkg/config"
	"github.com/YoubetDao/MCPForge-Backend-sub000/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	dir := flag.String("dir", "", "migrations directory (defaults to the embedded migrations)")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("migrate", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	migrationsDir := *dir
	if migrationsDir == "" {
		migrationsDir = cfg.MigrationsDir
	}
	runner, err := migrate.New(pool, cfg.DatabaseURL, migrationsDir, log)
	if err != nil {
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	switch *command {
	case "up":
		if err := runner.Ensure(ctx); err != nil {
			log.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			log.Error("failed to fetch migration status", "error", err)
			os.Exit(1)
		}
		printStatus(statuses)
	case "down":
		if err := runner.Down(ctx, *target); err != nil {
			log.Error("failed to roll back migrations", "error", err)
			os.Exit(1)
		}
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}

	log.Info("migration command completed", "command", *command)
}

func printStatus(statuses []migrate.Status) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Version", "Migration", "State", "Applied At"})
	for _, st := range statuses {
		state, applied := "pending", ""
		if st.Applied {
			state = "applied"
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{st.Version, st.Path, state, applied})
	}
	t.Render()
}
