package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"clipbot/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent downloads from the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.DBPath == "" {
				return fmt.Errorf("DB_PATH is empty: history is disabled")
			}
			s, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			recs, err := s.RecentDownloads(ctx, limit)
			if err != nil {
				return err
			}
			users, err := s.CountUsers(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintf(out, "No downloads yet (%d known users).\n", users)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tOUTCOME\tCATEGORY\tSIZE\tTITLE\tURL")
			for _, r := range recs {
				size := "-"
				if r.SizeBytes > 0 {
					size = humanize.Bytes(uint64(r.SizeBytes))
				}
				title := r.Title
				if title == "" {
					title = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					humanize.Time(r.CreatedAt), r.Outcome, r.Category, size, title, r.URL)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d downloads shown, %d known users.\n", len(recs), users)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of downloads to show")
	return cmd
}
