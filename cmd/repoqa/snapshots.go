package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repoqa/internal/analyze"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored snapshots",
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

		infos, err := st.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No snapshots yet: run 'repoqa ingest <repo>' first")
			return nil
		}

		fmt.Printf("%-40s %-30s %6s  %s\n", "HANDLE", "REPO", "FILES", "CREATED")
		for _, info := range infos {
			fmt.Printf("%-40s %-30s %6d  %s\n",
				info.Handle,
				info.RepoRef,
				info.TotalFiles,
				info.CreatedAt.Local().Format("2006-01-02 15:04"),
			)
		}
		return nil
	},
}

var flagShowLang string

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <handle>",
	Short: "Show one snapshot's metadata",
	Args:  cobra.ExactArgs(1),
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

		snap, err := st.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		an := analyze.New(snap)

		if flagShowLang != "" {
			files := an.FilesByLanguage(flagShowLang)
			if len(files) == 0 {
				fmt.Printf("No %s files in %s\n", flagShowLang, args[0])
				return nil
			}
			for _, f := range files {
				fmt.Printf("%-50s %8.1f KB  %s\n", f.Path, float64(f.Size)/1024, f.Purpose)
			}
			return nil
		}

		m := snap.Metadata
		fmt.Printf("Handle:     %s\n", args[0])
		fmt.Printf("Repository: %s\n", m.RepoRef)
		fmt.Printf("Files:      %d\n", m.TotalFiles)
		fmt.Printf("Total size: %.1f KB\n", float64(m.TotalSizeBytes)/1024)
		fmt.Printf("Ingested:   %s (%.1fs)\n", m.CreatedAt.Local().Format("2006-01-02 15:04:05"), m.ProcessingSeconds)
		fmt.Println()

		fmt.Println("Languages:")
		for _, c := range an.LanguageDistribution() {
			fmt.Printf("  %-20s %4d\n", c.Name, c.N)
		}
		return nil
	},
}

func init() {
	snapshotsShowCmd.Flags().StringVar(&flagShowLang, "lang", "", "list only files in this language")
	snapshotsCmd.AddCommand(snapshotsShowCmd)
	rootCmd.AddCommand(snapshotsCmd)
}
