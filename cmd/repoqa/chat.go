package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"repoqa/internal/analyze"
)

var (
	flagChatSnapshot string
	flagChatTopK     int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question loop over a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if err := loadForQuery(ctx, a, flagChatSnapshot); err != nil {
			return err
		}
		handle, snap, ok := a.pipe.Current()
		if !ok {
			return fmt.Errorf("no snapshot loaded")
		}
		an := analyze.New(snap)

		fmt.Println(titleStyle.Render("repoqa chat") + dimStyle.Render("  "+handle))
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d files from %s", snap.Metadata.TotalFiles, snap.Metadata.RepoRef)))
		fmt.Println("Type /help for commands, /exit to quit.")
		fmt.Println()

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := chatCommand(line, an); quit {
					return nil
				}
				continue
			}

			res, err := a.pipe.Ask(ctx, line, flagChatTopK)
			if err != nil {
				if ctx.Err() != nil {
					fmt.Println()
					return nil
				}
				fmt.Println(errorStyle.Render(err.Error()))
				continue
			}
			fmt.Println()
			printResult(res)
			fmt.Println()
		}
		return scanner.Err()
	},
}

func chatCommand(line string, an *analyze.Analyzer) (quit bool) {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/exit", "/quit":
		fmt.Println("Goodbye.")
		return true
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /stats           repository overview")
		fmt.Println("  /files <keyword> search file summaries")
		fmt.Println("  /clear           clear the screen")
		fmt.Println("  /exit            quit")
	case "/clear":
		fmt.Print("\033[H\033[2J")
	case "/stats":
		fmt.Println(an.Report())
	case "/files":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			fmt.Println("usage: /files <keyword>")
			break
		}
		matches := an.Search(arg)
		if len(matches) == 0 {
			fmt.Println(dimStyle.Render("no matches"))
			break
		}
		for _, m := range matches {
			fmt.Printf("  %s  %s\n", m.Path, dimStyle.Render(firstLine(m.Summary)))
		}
	default:
		fmt.Println("unknown command, /help lists commands")
	}
	return false
}

func init() {
	chatCmd.Flags().StringVar(&flagChatSnapshot, "snapshot", "", "snapshot handle (default: most recent)")
	chatCmd.Flags().IntVar(&flagChatTopK, "top-k", 0, "files to ground each answer in (default 10)")
	rootCmd.AddCommand(chatCmd)
}
