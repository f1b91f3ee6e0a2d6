package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"repoqa/internal/snapshot"
)

var (
	flagTopK      int
	flagSnapshot  string
	flagQuestions string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question grounded in the ingested repository",
	Long: `Answer one question against the most recent snapshot (or the one named
with --snapshot). With --questions, every non-empty line of the file is
asked in turn and the results are written to batch_results.json in the
output directory.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" && flagQuestions == "" {
			return errors.New("provide a question or --questions <file>")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := loadForQuery(ctx, a, flagSnapshot); err != nil {
			return err
		}

		if flagQuestions != "" {
			return runBatch(ctx, a, flagQuestions)
		}

		res, err := a.pipe.Ask(ctx, question, flagTopK)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

func printResult(res *snapshot.QuestionResult) {
	fmt.Println(dimStyle.Render("Files consulted:"))
	for _, p := range res.SelectedPaths {
		fmt.Println(dimStyle.Render("  " + p))
	}
	fmt.Println()
	fmt.Println(renderMarkdown(res.Answer))
}

func runBatch(ctx context.Context, a *app, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var questions []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions in %s", path)
	}

	results := make([]snapshot.QuestionResult, 0, len(questions))
	for i, q := range questions {
		fmt.Printf("[%d/%d] %s\n", i+1, len(questions), q)
		res, err := a.pipe.Ask(ctx, q, flagTopK)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Println(errorStyle.Render("  error: " + err.Error()))
			continue
		}
		results = append(results, *res)
		fmt.Println(dimStyle.Render("  " + firstLine(res.Answer)))
	}

	out := filepath.Join(a.cfg.OutputDir, "batch_results.json")
	doc, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, doc, 0o644); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Wrote %d results to %s", len(results), out)))
	return nil
}

func init() {
	askCmd.Flags().IntVar(&flagTopK, "top-k", 0, "files to ground the answer in (default 10)")
	askCmd.Flags().StringVar(&flagSnapshot, "snapshot", "", "snapshot handle (default: most recent)")
	askCmd.Flags().StringVar(&flagQuestions, "questions", "", "file with one question per line")
	rootCmd.AddCommand(askCmd)
}
