package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/internal/credstore"
	"github.com/systmms/finlink/pkg/connector"
)

func NewStoreCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect sealed credentials in the credential store",
		Long: `Inspect the sealed credential records written by 'finlink serve'.

Records are listed by provider with their metadata only; nothing is decrypted.`,
	}

	cmd.AddCommand(newStoreListCommand(cfg), newStoreDeleteCommand(cfg))
	return cmd
}

func newStoreListCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers with stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), cfg, func(ctx context.Context, store credstore.Store) error {
				keys, err := store.List(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintf(w, "PROVIDER\tKIND\tCREATED\n")
				_, _ = fmt.Fprintf(w, "--------\t----\t-------\n")
				for _, key := range keys {
					rec, err := store.Get(ctx, key)
					if errors.Is(err, credstore.ErrNotFound) {
						continue
					}
					if err != nil {
						return err
					}
					created := "-"
					if !rec.CreatedAt.IsZero() {
						created = rec.CreatedAt.UTC().Format(time.RFC3339)
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", key, rec.Kind, created)
				}
				return w.Flush()
			})
		},
	}
}

func newStoreDeleteCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <provider>",
		Short: "Delete the stored credentials of a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := connector.ParseProviderKey(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), cfg, func(ctx context.Context, store credstore.Store) error {
				if err := store.Delete(ctx, key); err != nil {
					return err
				}
				cfg.Logger.Info("deleted stored credentials for %s", key)
				return nil
			})
		},
	}
}

func withStore(ctx context.Context, cfg *config.Config, fn func(context.Context, credstore.Store) error) error {
	if err := cfg.LoadOptional(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := credstore.Open(ctx, cfg.Definition.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			cfg.Logger.Warn("failed to close credential store: %v", err)
		}
	}()

	return fn(ctx, store)
}
