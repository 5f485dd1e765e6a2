// Команда migrate управляет схемой PostgreSQL магазина: up, down, status.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/bookstore/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "BOOKSTORE_POSTGRES_DSN"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "migrate",
		Usage: "apply or roll back bookstore PostgreSQL migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "PostgreSQL DSN",
				EnvVars: []string{envPostgresDSN},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall operation timeout",
				Value: defaultTimeout,
			},
		},
		Writer:         out,
		ErrWriter:      out,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to apply (0 = all)"},
				},
				Action: withStore(func(ctx context.Context, c *cli.Context, store *postgres.Store) error {
					if err := store.MigrateUp(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate up failed: %w", err)
					}
					return printState(ctx, c, store, "migrate up ok")
				}),
			},
			{
				Name:  "down",
				Usage: "roll back applied migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to roll back", Value: 1},
				},
				Action: withStore(func(ctx context.Context, c *cli.Context, store *postgres.Store) error {
					if err := store.MigrateDown(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate down failed: %w", err)
					}
					return printState(ctx, c, store, "migrate down ok")
				}),
			},
			{
				Name:  "status",
				Usage: "show applied and pending migrations",
				Action: withStore(func(ctx context.Context, c *cli.Context, store *postgres.Store) error {
					return printState(ctx, c, store, "migration status")
				}),
			},
		},
	}
}

type storeAction func(ctx context.Context, c *cli.Context, store *postgres.Store) error

// withStore открывает подключение по --dsn на время команды.
func withStore(action storeAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		dsn := strings.TrimSpace(c.String("dsn"))
		if dsn == "" {
			return errors.New(envPostgresDSN + " (or --dsn) is required")
		}

		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer store.Close()

		return action(ctx, c, store)
	}
}

func printState(ctx context.Context, c *cli.Context, store *postgres.Store, prefix string) error {
	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintf(c.App.Writer, "%s: version=%d applied=%d pending=%d\n", prefix, state.Version, state.Applied, len(state.Pending))
	if err != nil {
		return err
	}
	for _, name := range state.Pending {
		_, _ = fmt.Fprintf(c.App.Writer, "  pending %s\n", name)
	}
	return nil
}
