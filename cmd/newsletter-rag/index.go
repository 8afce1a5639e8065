package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(open opener) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load or build the embedding cache",
		Long: `Loads the embedding cache, building it from the corpus when it is
missing or unreadable. With --force the cache is discarded and rebuilt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn(ctx) }()

			if force {
				err = svc.Reindex(ctx)
			} else {
				err = svc.EnsureIndex(ctx)
			}
			if err != nil {
				return fmt.Errorf("index failed: %w", err)
			}

			stats := svc.Stats()
			cmd.Printf("Indexed %d chunks (%d dimensions) from %s\n", stats.Chunks, stats.Dimensions, stats.Source)
			cmd.Printf("Cache: %s\n", stats.CachePath)
			if stats.Partial {
				cmd.Println("Warning: the build stopped at INDEX_TIMEOUT; raise it and run index --force to embed the rest.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "discard the cache and rebuild it")
	return cmd
}
