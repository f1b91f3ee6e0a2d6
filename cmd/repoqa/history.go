package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repoqa/internal/history"
	"repoqa/internal/snapshot"
)

var (
	flagHistoryLimit   int
	flagHistoryResults bool
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show past questions and answers",
	Long: `Without arguments, list the most recent questions. With a session id,
show that session's full Q&A. With --results, read the append-only
qa_results.jsonl log instead of the session database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if flagHistoryResults {
			log, err := snapshot.NewResultsLog(cfg.OutputDir)
			if err != nil {
				return err
			}
			results, err := log.ReadAll()
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No results logged yet")
				return nil
			}
			if len(results) > flagHistoryLimit {
				results = results[len(results)-flagHistoryLimit:]
			}
			for _, r := range results {
				fmt.Printf("[%s] %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Question)
				fmt.Println(dimStyle.Render("  " + firstLine(r.Answer)))
				fmt.Println()
			}
			return nil
		}

		hist, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer hist.Close()

		if len(args) == 1 {
			return showSession(cmd, hist, args[0])
		}

		questions, err := hist.Recent(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			fmt.Println("No questions asked yet")
			return nil
		}
		for _, q := range questions {
			fmt.Printf("[%s] %s\n", q.CreatedAt.Local().Format("2006-01-02 15:04"), q.Question)
			fmt.Println(dimStyle.Render("  " + firstLine(q.Answer)))
			fmt.Println()
		}
		return nil
	},
}

func showSession(cmd *cobra.Command, hist *history.Store, id string) error {
	questions, err := hist.Questions(cmd.Context(), id)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		fmt.Printf("No questions in session %s\n", id)
		return nil
	}
	for _, q := range questions {
		fmt.Println(titleStyle.Render("Q: " + q.Question))
		fmt.Println(renderMarkdown(q.Answer))
		if len(q.SelectedPaths) > 0 {
			fmt.Println(dimStyle.Render(fmt.Sprintf("  grounded in %d files", len(q.SelectedPaths))))
		}
		fmt.Println()
	}
	return nil
}

var historySessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List question sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		hist, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer hist.Close()

		sessions, err := hist.Sessions(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions yet")
			return nil
		}

		fmt.Printf("%-38s %-18s %-30s %s\n", "ID", "STARTED", "REPO", "QUESTIONS")
		for _, s := range sessions {
			count, err := hist.CountQuestions(cmd.Context(), s.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%-38s %-18s %-30s %d\n",
				s.ID,
				s.StartedAt.Local().Format("2006-01-02 15:04"),
				s.RepoRef,
				count,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().IntVar(&flagHistoryLimit, "limit", 20, "maximum entries to show")
	historyCmd.Flags().BoolVar(&flagHistoryResults, "results", false, "read qa_results.jsonl instead of the session database")
	historyCmd.AddCommand(historySessionsCmd)
	rootCmd.AddCommand(historyCmd)
}
