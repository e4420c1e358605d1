package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bally/internal/backend"
	"bally/internal/records"
	"bally/internal/records/memory"
	"bally/internal/services"
)

func newSeedCmd(s *session) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed FILE",
		Short: "Import suppliers and invoices from a YAML file",
		Long: `Import suppliers and invoices from a YAML file into the configured backend.

Records keep the ids in the file; existing records with the same id are
replaced. The whole file is validated before anything is written.`,
		Example: `  ballyctl seed data/seed.yaml --backend sqlite --db ./data/bally.db
  ballyctl seed data/seed.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			seed, err := memory.ParseSeed(data)
			if err != nil {
				return err
			}
			if err := memory.New().Load(seed); err != nil {
				return fmt.Errorf("invalid seed: %w", err)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%s: %d suppliers and %d invoices are valid\n", args[0], len(seed.Suppliers), len(seed.Invoices))
				return nil
			}
			if !backend.BackendType(s.cfg.DataBackend).Shared() {
				s.logger.Warn("Importing into a backend that is discarded when ballyctl exits", "backend", s.cfg.DataBackend)
			}

			if err := importSeed(cmd.Context(), s.app.Store(), seed); err != nil {
				return err
			}
			s.logger.Info("Seed imported", "file", args[0], "suppliers", len(seed.Suppliers), "invoices", len(seed.Invoices))
			fmt.Fprintf(out, "Imported %d suppliers and %d invoices\n", len(seed.Suppliers), len(seed.Invoices))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}

// importSeed writes suppliers first so every invoice finds its supplier
// either in the file or already in the store.
func importSeed(ctx context.Context, store records.Store, seed memory.Seed) error {
	known := make(map[string]bool, len(seed.Suppliers))
	for _, sup := range seed.Suppliers {
		if err := store.SaveSupplier(ctx, sup); err != nil {
			return err
		}
		known[sup.ID] = true
	}
	for _, inv := range seed.Invoices {
		if !known[inv.SupplierID] {
			if _, err := store.GetSupplier(ctx, inv.SupplierID); err != nil {
				if errors.Is(err, records.ErrNotFound) {
					return fmt.Errorf("invoice %s: %w: %s", inv.ID, services.ErrUnknownSupplier, inv.SupplierID)
				}
				return err
			}
			known[inv.SupplierID] = true
		}
		if err := store.SaveInvoice(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}
