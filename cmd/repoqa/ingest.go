package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"repoqa/internal/source"
)

var (
	flagIngestWorkers       int
	flagIngestExts          []string
	flagIngestDir           string
	flagIngestExcludeTests  bool
	flagIngestExcludeConfig bool
	flagIngestOnlySource    bool
)

// listFilters narrows fetched file lists per the ingest flags. Filters that
// were not requested pass the list through untouched.
type listFilters struct {
	inner source.Source
}

func (s listFilters) Fetch(ctx context.Context, ref string) (*source.RepoContents, error) {
	contents, err := s.inner.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	files := contents.Files
	if flagIngestDir != "" {
		files = source.ByDirectory(files, flagIngestDir)
	}
	if flagIngestExcludeTests {
		files = source.ExcludeTests(files)
	}
	if flagIngestExcludeConfig {
		files = source.ExcludeConfig(files)
	}
	if flagIngestOnlySource {
		files = source.OnlySourceCode(files)
	}
	contents.Files = files
	return contents, nil
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <repo>",
	Short: "Fetch and summarize a repository into a snapshot",
	Long: `Fetch every text file of the repository, summarize each one with the
model, and persist the summaries as a new snapshot. File contents are
archived alongside the snapshot so later questions can quote them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagIngestWorkers > 0 {
			cfg.Workers = flagIngestWorkers
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Ingesting %s ...\n", args[0])
		res, err := a.pipe.Ingest(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Println(successStyle.Render(fmt.Sprintf(
			"Snapshot %s: %d files summarized in %s",
			res.Handle, res.Snapshot.Metadata.TotalFiles, res.Elapsed.Round(time.Second),
		)))
		if len(res.Failures) > 0 {
			fmt.Println(warnStyle.Render(fmt.Sprintf("%d files could not be summarized:", len(res.Failures))))
			for _, f := range res.Failures {
				fmt.Printf("  %s: %s\n", f.Path, f.Reason)
			}
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&flagIngestWorkers, "workers", 0, "concurrent summarization calls (default 10)")
	ingestCmd.Flags().StringSliceVar(&flagIngestExts, "ext", nil, "only these extensions (e.g. .py,.go)")
	ingestCmd.Flags().StringVar(&flagIngestDir, "dir", "", "only files under this directory")
	ingestCmd.Flags().BoolVar(&flagIngestExcludeTests, "exclude-tests", false, "skip test files")
	ingestCmd.Flags().BoolVar(&flagIngestExcludeConfig, "exclude-config", false, "skip configuration-format files")
	ingestCmd.Flags().BoolVar(&flagIngestOnlySource, "only-source", false, "keep only mainstream programming languages")
	rootCmd.AddCommand(ingestCmd)
}
