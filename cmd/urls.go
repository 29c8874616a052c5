package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newURLsCmd creates the 'urls' subcommand.
func newURLsCmd() *cobra.Command {
	var (
		siteID int
		flush  bool
	)
	cmd := &cobra.Command{
		Use:   "urls",
		Short: "List the URLs collected for a site",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			col := appInstance.GetCollector()

			if flush {
				if err := col.Invalidate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "URL collection cache flushed")
				return nil
			}

			urls, err := col.Collect(cmd.Context(), siteID)
			if err != nil {
				return fmt.Errorf("collect urls: %w", err)
			}
			for _, u := range urls {
				fmt.Fprintln(out, u)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d URLs\n", len(urls))
			return nil
		},
	}
	cmd.Flags().IntVarP(&siteID, "store-id", "s", 0, "Store ID (default site when omitted)")
	cmd.Flags().BoolVar(&flush, "flush", false, "Drop cached URL collections instead of listing")
	return cmd
}
