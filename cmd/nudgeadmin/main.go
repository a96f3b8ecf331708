package main

import (
	"context"
	"fmt"
	"os"

	"neuronudge-backend-go/internal/db"
	"neuronudge-backend-go/internal/migrations"
	"neuronudge-backend-go/internal/store"

	"github.com/joho/godotenv"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		if _, fprintfErr := fmt.Fprintf(os.Stderr, "nudgeadmin: %+v\n", err); fprintfErr != nil {
			panic(fmt.Errorf("failed to output an error: %w. Reason: %w", err, fprintfErr))
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "nudgeadmin",
		Short:         "Maintenance commands for the NeuroNudge database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", "", "Postgres DSN (defaults to DATABASE_URL)")
	_ = v.BindPFlag("database_url", root.PersistentFlags().Lookup("database-url"))

	open := func(ctx context.Context) (*sqlx.DB, error) {
		dsn := v.GetString("database_url")
		if dsn == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		return db.Open(ctx, dsn)
	}

	root.AddCommand(newMigrateCommand(open), newStatsCommand(open))
	return root
}

type opener func(ctx context.Context) (*sqlx.DB, error)

func newMigrateCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = database.Close()
			}()
			applied, err := migrations.Apply(cmd.Context(), database)
			if err != nil {
				return fmt.Errorf("migrations.Apply() > %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func newStatsCommand(open opener) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Inspect materialized user stats",
	}
	statsCmd.AddCommand(newReplayCommand(func(ctx context.Context) (store.Store, func(), error) {
		database, err := open(ctx)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(database), func() { _ = database.Close() }, nil
	}))
	return statsCmd
}
