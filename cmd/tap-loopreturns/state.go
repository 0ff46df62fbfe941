package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/tap-loopreturns/internal/config"
	"github.com/Sternrassler/tap-loopreturns/pkg/state"
	"github.com/Sternrassler/tap-loopreturns/pkg/stream"
	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted replication state",
	}

	var streamName string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted bookmark as a Singer state document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			store, err := state.Open(cmd.Context(), cfg.StoreConfig())
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			doc := &state.Document{Bookmarks: map[string]state.Bookmark{}}
			b, err := store.Load(cmd.Context(), streamName)
			switch {
			case err == nil:
				doc.Bookmarks[streamName] = b
			case !errors.Is(err, state.ErrNotFound):
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	show.Flags().StringVar(&streamName, "stream", stream.Returns.Name, "stream whose bookmark to print")

	cmd.AddCommand(show)
	return cmd
}
