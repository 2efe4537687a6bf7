package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/chaingate/internal/scenario"
)

var (
	checkScenario string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files (required)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	_ = checkCmd.MarkFlagRequired("scenario")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run policy scenario cases",
	Long:  "Evaluates scenario files of expected allow, deny and bypass outcomes against the policy.\nExits 1 if any case does not match. Use in CI to catch policy regressions.",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	files, err := filepath.Glob(checkScenario)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no scenario files matched: %s", checkScenario)
	}

	var results []*scenario.RunResult
	for _, f := range files {
		r, err := scenario.LoadAndRun(f, policyPath)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		results = append(results, r)
	}

	w := cmd.OutOrStdout()
	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	default:
		fmt.Fprint(w, scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			return errFailed
		}
	}
	return nil
}
