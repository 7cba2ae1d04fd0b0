package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cityinfo.org/internal/config"
	"cityinfo.org/internal/migrate"
	"cityinfo.org/internal/obs"
	"cityinfo.org/ops/migrations"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply CityInfo schema migrations and demo seeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("pg.dsn", "", "PostgreSQL DSN (env "+config.EnvPrefix+"_PG_DSN)")
	flags.Duration("timeout", 30*time.Second, "overall timeout")
	_ = v.BindPFlag("pg.dsn", flags.Lookup("pg.dsn"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: withManager(v, func(ctx context.Context, m *migrate.Manager, out func(string)) error {
				applied, err := m.Up(ctx)
				for _, name := range applied {
					out(name)
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: withManager(v, func(ctx context.Context, m *migrate.Manager, out func(string)) error {
				name, err := m.Down(ctx)
				if errors.Is(err, migrate.ErrNothingApplied) {
					out("nothing to roll back")
					return nil
				}
				if err == nil {
					out(name)
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load demo cities and points of interest",
			RunE: withManager(v, func(ctx context.Context, m *migrate.Manager, out func(string)) error {
				applied, err := m.Seed(ctx)
				for _, name := range applied {
					out(name)
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			RunE: withManager(v, func(ctx context.Context, m *migrate.Manager, out func(string)) error {
				history, err := m.Status(ctx)
				for _, name := range history {
					out(name)
				}
				return err
			}),
		},
	)
	return root
}

type action func(ctx context.Context, m *migrate.Manager, out func(string)) error

func withManager(v *viper.Viper, fn action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		dsn := v.GetString("pg.dsn")
		if dsn == "" {
			return fmt.Errorf("missing DSN: provide --pg.dsn or %s_PG_DSN", config.EnvPrefix)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
		defer cancel()

		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		m := migrate.NewManager(db, migrations.Files, migrations.Dir, migrations.SeedsDir,
			migrate.WithLogger(obs.Logger().With(zap.String("cmd", cmd.Name()))))
		if err := fn(ctx, m, func(s string) { fmt.Fprintln(cmd.OutOrStdout(), s) }); err != nil {
			return fmt.Errorf("migrate %s: %w", cmd.Name(), err)
		}
		return nil
	}
}
