package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"repoqa/internal/analyze"
)

var (
	flagExportFormat string
	flagExportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export [handle]",
	Short: "Export a snapshot's summaries as Markdown or CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagExportFormat != "md" && flagExportFormat != "csv" {
			return fmt.Errorf("unknown --format %q (want md or csv)", flagExportFormat)
		}

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

		out := flagExportOut
		if out == "" {
			base := strings.TrimSuffix(handle, ".json")
			out = filepath.Join(cfg.OutputDir, base+"."+flagExportFormat)
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}

		switch flagExportFormat {
		case "md":
			if err := os.WriteFile(out, []byte(analyze.New(snap).Markdown()), 0o644); err != nil {
				return err
			}
		case "csv":
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := analyze.WriteCSV(f, snap); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}

		fmt.Println(successStyle.Render("Exported " + handle + " to " + out))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "md", "export format: md or csv")
	exportCmd.Flags().StringVar(&flagExportOut, "out", "", "output path (default derived from the handle)")
	rootCmd.AddCommand(exportCmd)
}
