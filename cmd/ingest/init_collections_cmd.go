package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/onchain-ingest/internal/store"
)

func newInitCollectionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-collections",
		Short: "Create any missing document collections and show their sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate("DATABASE_URL"); err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := store.New(ctx, a.cfg.DatabaseURL, a.cfg.StoreSchema)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.EnsureCollections(ctx); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COLLECTION\tDOCUMENTS")
			for _, c := range store.Collections {
				n, err := s.Count(ctx, c)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s.%s\t%d\n", a.cfg.StoreSchema, c, n)
			}
			a.logger.Info("collections ready", "schema", a.cfg.StoreSchema)
			return w.Flush()
		},
	}
}
