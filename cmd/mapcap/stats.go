package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/session"
	"mapcap-ipo/internal/view"
)

func newStatsCmd() *cobra.Command {
	var (
		username string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a Pioneer's IPO statistics once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd.OutOrStdout(), newClient(logger), username, asJSON)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Pi username")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw snapshot as JSON")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// runStats fetches one snapshot through a session store, so the
// consistency check applies, and prints the stats band.
func runStats(ctx context.Context, w io.Writer, fetcher session.Fetcher, username string, asJSON bool) error {
	identity := domain.Identity{Username: username}
	if identity.IsZero() {
		return domain.ErrNoIdentity
	}

	store := session.New(fetcher, session.Options{Logger: logger})
	if err := store.Refresh(ctx, identity.Username); err != nil {
		return err
	}
	m := store.Metrics()

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t@%s\n", view.StatsTitle, identity.Username)
	for _, row := range view.StatsRows(m) {
		fmt.Fprintf(tw, "%s\t%s\n", row.Label, row.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if notice := view.WhaleNoticeFor(m); notice != "" {
		fmt.Fprintln(w, notice)
	}
	return nil
}
