package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

var (
	extractFormat     string
	extractSide       string
	extractBase       string
	extractBuildDirs  []string
	extractWorkspaces []string
	extractOutput     string
)

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVar(&extractFormat, "archive-format", "", "Archive format (tar|tar.gz|tar.zst|tar.lz4|zip), detected when empty")
	extractCmd.Flags().StringVar(&extractSide, "side", "agent", "Side requesting the extraction (agent|controller)")
	extractCmd.Flags().StringVar(&extractBase, "base", "", "Base directory for relative paths")
	extractCmd.Flags().StringSliceVar(&extractBuildDirs, "build-dir", nil, "Build directory of the request (repeatable)")
	extractCmd.Flags().StringSliceVar(&extractWorkspaces, "workspace", nil, "Workspace of the request (repeatable)")
	extractCmd.Flags().StringVarP(&extractOutput, "format", "f", "text", "Output format (text|json)")
}

var extractCmd = &cobra.Command{
	Use:   "extract <archive> <dest>",
	Short: "Unpack an archive through the path sandbox",
	Long:  "Extracts an archive into dest, checking every entry before it is written.\nEntries that would land outside dest are rejected even under a path kill-switch.\nExits 1 on rejection; entries written before it stay in place.",
	Args:  cobra.ExactArgs(2),
	RunE:  runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	format, err := sandbox.ParseFormat(extractFormat)
	if err != nil {
		return err
	}
	g, err := openGate()
	if err != nil {
		return err
	}

	scope := g.NewScope("cli-extract", model.ParseSide(extractSide), sandbox.Context{
		Base:       extractBase,
		BuildDirs:  extractBuildDirs,
		Workspaces: extractWorkspaces,
	})
	defer scope.Close()

	report, extractErr := scope.Extract(cmd.Context(), args[0], args[1], format)
	w := cmd.OutOrStdout()
	if extractOutput == "json" {
		out := struct {
			*sandbox.Report
			Error string `json:"error,omitempty"`
		}{Report: report}
		if extractErr != nil {
			out.Error = extractErr.Error()
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		fmt.Fprintln(w, string(data))
	} else if report != nil {
		fmt.Fprintf(w, "Format: %s\n", report.Format)
		fmt.Fprintf(w, "Written: %d entries\n", len(report.Written))
		if len(report.Skipped) > 0 {
			fmt.Fprintf(w, "Skipped: %d entries\n", len(report.Skipped))
		}
		if report.Denied != "" {
			fmt.Fprintf(w, "Rejected entry: %s\n", report.Denied)
		}
	}

	if extractErr != nil {
		if extractOutput != "json" {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAILED: %v\n", extractErr)
		}
		return errFailed
	}
	return nil
}
