package cmd

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagecache-warmer/internal/orchestrator"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

var (
	errDisabled   = errors.New("cache warmer is disabled in configuration")
	errWarmFailed = errors.New("warming failed")
)

type warmOptions struct {
	siteID     int
	url        string
	checkCache bool
	smartWarm  bool
}

// newWarmCmd creates the 'warm' subcommand.
func newWarmCmd() *cobra.Command {
	opts := &warmOptions{}
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Warm cache by requesting URLs",
		Long: `Collects the URLs of a site and requests every one that is not already
cached. With --url a single URL is warmed; with --check-cache nothing is
requested and the cache status is reported instead. On SIGINT or SIGTERM no
new URL is requested and the digest lists the URLs that were not warmed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return runWarm(cmd, appInstance, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.siteID, "store-id", "s", 0, "Store ID to warm cache for (default site when omitted)")
	cmd.Flags().StringVarP(&opts.url, "url", "u", "", "Single URL to warm")
	cmd.Flags().BoolVarP(&opts.checkCache, "check-cache", "c", false, "Check cache status without warming")
	cmd.Flags().BoolVar(&opts.smartWarm, "smart-warm", false, "Only warm URLs that are not cached")
	return cmd
}

func runWarm(cmd *cobra.Command, appInstance App, opts *warmOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	engine := appInstance.GetOrchestrator()

	if !engine.IsEnabled() {
		return errDisabled
	}

	if opts.url != "" {
		return warmSingle(cmd, engine, opts)
	}

	fmt.Fprintln(out, "Collecting URLs...")
	urls, err := appInstance.GetCollector().Collect(ctx, opts.siteID)
	if err != nil {
		return fmt.Errorf("collect urls: %w", err)
	}
	if len(urls) == 0 {
		fmt.Fprintln(out, "No URLs found to warm")
		return nil
	}
	fmt.Fprintf(out, "Found %d URLs to warm\n", len(urls))

	if opts.checkCache {
		reportCacheStatus(cmd, engine, urls)
		return nil
	}

	if opts.smartWarm {
		urls = uncached(cmd, engine, urls)
		if len(urls) == 0 {
			fmt.Fprintln(out, "All URLs are already cached")
			return nil
		}
	}

	progress := cmd.ErrOrStderr()
	batch := engine.WarmMany(ctx, urls, func(done, total int, _ warmer.WarmResult) {
		fmt.Fprintf(progress, "\r%d/%d", done, total)
	})
	fmt.Fprintln(progress)

	printDigest(out, batch)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("warming interrupted: %w", err)
	}
	return nil
}

func warmSingle(cmd *cobra.Command, engine *orchestrator.Orchestrator, opts *warmOptions) error {
	out := cmd.OutOrStdout()
	if opts.checkCache {
		fmt.Fprintf(out, "Checking cache status for: %s\n", opts.url)
		if engine.CheckPresence(cmd.Context(), opts.url).Cached {
			fmt.Fprintln(out, "✓ Cached")
		} else {
			fmt.Fprintln(out, "✗ Not cached or expired")
		}
		return nil
	}

	fmt.Fprintf(out, "Warming single URL: %s\n", opts.url)
	result := engine.WarmOne(cmd.Context(), warmer.CandidateURL{URL: opts.url, Type: warmer.URLTypeManual})
	if !result.Success {
		fmt.Fprintf(out, "✗ Failed: %s\n", result.Message)
		return errWarmFailed
	}
	if result.Cached {
		fmt.Fprintln(out, "✓ Success (cached)")
	} else {
		fmt.Fprintf(out, "✓ Success (%gms)\n", result.ResponseTimeMs)
	}
	return nil
}

func reportCacheStatus(cmd *cobra.Command, engine *orchestrator.Orchestrator, urls []warmer.CandidateURL) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Checking cache status for all URLs...")
	var cached, notCached int
	for _, u := range urls {
		if engine.CheckPresence(cmd.Context(), u.URL).Cached {
			cached++
			continue
		}
		notCached++
		fmt.Fprintf(out, "Not cached: %s\n", u.URL)
	}
	fmt.Fprintln(out, "Cache Status Summary:")
	fmt.Fprintf(out, "✓ Cached: %d\n", cached)
	fmt.Fprintf(out, "✗ Not cached: %d\n", notCached)
}

func uncached(cmd *cobra.Command, engine *orchestrator.Orchestrator, urls []warmer.CandidateURL) []warmer.CandidateURL {
	out := make([]warmer.CandidateURL, 0, len(urls))
	for _, u := range urls {
		if !engine.CheckPresence(cmd.Context(), u.URL).Cached {
			out = append(out, u)
		}
	}
	if skipped := len(urls) - len(out); skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Skipping %d cached URLs\n", skipped)
	}
	return out
}

func printDigest(out io.Writer, batch warmer.Batch) {
	fmt.Fprintln(out, "Cache warming completed:")
	fmt.Fprintf(out, "✓ Success: %d\n", batch.Summary.Success)
	if batch.Summary.Cached > 0 {
		fmt.Fprintf(out, "  (already cached: %d)\n", batch.Summary.Cached)
	}
	if batch.Summary.Failure == 0 {
		return
	}
	fmt.Fprintf(out, "✗ Failed: %d\n", batch.Summary.Failure)
	for _, f := range warmer.Failures(batch.Results) {
		fmt.Fprintf(out, "  %s - %s\n", f.Candidate(), f.Message)
	}
}
