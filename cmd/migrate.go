package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"magazyn/internal/store/memstore"
	"magazyn/internal/store/pgstore"
	"magazyn/pkg/database"
)

func newMigrateCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy a JSON data file into PostgreSQL",
		Long: "Creates the PostgreSQL schema and replaces its contents with the users, " +
			"warehouses, memberships and products of the JSON data file.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			if source == "" {
				source = cfg.Store.DataPath
			}
			ctx := cmd.Context()

			// Open would create a missing file and the import would then empty the database
			if _, err := os.Stat(source); err != nil {
				return fmt.Errorf("data file: %w", err)
			}
			file, err := memstore.Open(source, log)
			if err != nil {
				return fmt.Errorf("open data file: %w", err)
			}
			ds, err := file.Export(ctx)
			if err != nil {
				return fmt.Errorf("export data file: %w", err)
			}

			db, err := database.InitDB(&cfg.DB, log)
			if err != nil {
				return err
			}
			pg := pgstore.New(db, cfg.DB.Timeout)
			defer pg.Close()

			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}
			if err := pg.Import(ctx, ds); err != nil {
				return fmt.Errorf("import data: %w", err)
			}

			log.Info("Migration completed",
				zap.String("source", source),
				zap.Int("users", len(ds.Users)),
				zap.Int("warehouses", len(ds.Warehouses)),
				zap.Int("memberships", len(ds.Memberships)),
				zap.Int("products", len(ds.Products)))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "from", "", "JSON data file to import (defaults to DATA_PATH)")
	return cmd
}
