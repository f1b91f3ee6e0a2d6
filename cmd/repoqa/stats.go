package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repoqa/internal/analyze"
)

var flagReportOut string

var statsCmd = &cobra.Command{
	Use:   "stats [handle]",
	Short: "Print the analysis report for a snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		handle := ""
		if len(args) == 1 {
			handle = args[0]
		}
		snap, handle, err := resolveSnapshot(cmd.Context(), st, handle)
		if err != nil {
			return err
		}

		report := analyze.New(snap).Report()
		if flagReportOut != "" {
			if err := os.WriteFile(flagReportOut, []byte(report), 0o644); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Wrote report for " + handle + " to " + flagReportOut))
			return nil
		}
		fmt.Println(report)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&flagReportOut, "report", "", "write the report to this file instead of stdout")
	rootCmd.AddCommand(statsCmd)
}
