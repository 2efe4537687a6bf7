package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/chaingate/internal/client"
	"github.com/ppiankov/chaingate/internal/gate"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/sandbox"
)

var (
	checkServer      string
	checkPathSide    string
	checkClassSide   string
	checkFormatOut   string
	checkPathOp      string
	checkPathBase    string
	checkBuildDirs   []string
	checkWorkspaces  []string
	checkUserContent string
)

func init() {
	rootCmd.AddCommand(checkPathCmd)
	rootCmd.AddCommand(checkClassCmd)

	for _, c := range []*cobra.Command{checkPathCmd, checkClassCmd} {
		c.Flags().StringVar(&checkServer, "server", "", "Ask a running gate service at this address instead of deciding locally")
		c.Flags().StringVarP(&checkFormatOut, "format", "f", "text", "Output format (text|json)")
	}
	checkPathCmd.Flags().StringVar(&checkPathSide, "side", "agent", "Side requesting the operation (agent|controller)")
	checkPathCmd.Flags().StringVar(&checkPathOp, "op", "read", "Operation (read|write|create|delete|list|stat|extract|mkdirs|symlink)")
	checkPathCmd.Flags().StringVar(&checkPathBase, "base", "", "Base directory for relative paths")
	checkPathCmd.Flags().StringSliceVar(&checkBuildDirs, "build-dir", nil, "Build directory of the request (repeatable)")
	checkPathCmd.Flags().StringSliceVar(&checkWorkspaces, "workspace", nil, "Workspace of the request (repeatable)")
	checkPathCmd.Flags().StringVar(&checkUserContent, "user-content", "", "User content directory of the request")
	checkClassCmd.Flags().StringVar(&checkClassSide, "side", "controller", "Side that would decode the object (agent|controller)")
}

var checkPathCmd = &cobra.Command{
	Use:   "check-path <path>",
	Short: "Decide whether a file operation may cross the boundary",
	Long:  "Evaluates a file operation against the path sandbox without performing it.\nExits 1 if the operation would be rejected.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckPath,
}

var checkClassCmd = &cobra.Command{
	Use:   "check-class <type>",
	Short: "Decide whether a class may be decoded",
	Long:  "Evaluates a class name or type expression such as map[string][]acme.Result\nagainst the class filter. Exits 1 if the class would be rejected.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckClass,
}

// checkOutput is the machine-readable form of one decision.
type checkOutput struct {
	Decision string     `json:"decision"`
	Kind     model.Kind `json:"kind,omitempty"`
	Subject  string     `json:"subject"`
	Reason   string     `json:"reason,omitempty"`
}

func runCheckPath(cmd *cobra.Command, args []string) error {
	op, ok := model.ParseOperation(checkPathOp)
	if !ok {
		return fmt.Errorf("unknown operation %q", checkPathOp)
	}
	side := model.ParseSide(checkPathSide)
	rc := sandbox.Context{
		Base:        checkPathBase,
		BuildDirs:   checkBuildDirs,
		Workspaces:  checkWorkspaces,
		UserContent: checkUserContent,
	}

	if checkServer != "" {
		c, err := client.New(checkServer)
		if err != nil {
			return err
		}
		defer c.Close()
		d, err := c.CheckPath(cmd.Context(), client.PathRequest{Op: op, Path: args[0], Side: side, Context: rc})
		if err != nil {
			return err
		}
		return printDecision(cmd.OutOrStdout(), d, args[0], true)
	}

	g, err := openGate()
	if err != nil {
		return err
	}
	d := g.EvaluatePath(rc, op, args[0], side)
	return printDecision(cmd.OutOrStdout(), d, args[0], enforced(g, model.MechanismPath))
}

func runCheckClass(cmd *cobra.Command, args []string) error {
	side := model.ParseSide(checkClassSide)

	if checkServer != "" {
		c, err := client.New(checkServer)
		if err != nil {
			return err
		}
		defer c.Close()
		d, err := c.CheckClass(cmd.Context(), args[0], side)
		if err != nil {
			return err
		}
		return printDecision(cmd.OutOrStdout(), d, args[0], true)
	}

	g, err := openGate()
	if err != nil {
		return err
	}
	d := g.EvaluateClass(args[0])
	return printDecision(cmd.OutOrStdout(), d, args[0], enforced(g, model.MechanismClass))
}

func enforced(g *gate.Gate, mech model.Mechanism) bool {
	return g.Store().Snapshot().Enforced(mech)
}

// printDecision writes d and returns errFailed when the operation would
// be rejected. A denial under an active kill-switch prints as a bypass
// and succeeds.
func printDecision(w io.Writer, d model.Decision, subject string, enforcing bool) error {
	out := checkOutput{Decision: "allow", Kind: d.Kind, Subject: subject, Reason: d.Reason}
	switch {
	case d.Allowed:
	case !enforcing:
		out.Decision = "bypass"
	default:
		out.Decision = "deny"
	}

	if checkFormatOut == "json" {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(w, string(data))
	} else {
		switch out.Decision {
		case "allow":
			fmt.Fprintf(w, "ALLOW  %s\n", subject)
		case "bypass":
			fmt.Fprintf(w, "BYPASS %s (%s): %s [kill-switch]\n", subject, out.Kind, out.Reason)
		default:
			if out.Kind != "" {
				fmt.Fprintf(w, "DENY   %s (%s): %s\n", subject, out.Kind, out.Reason)
			} else {
				fmt.Fprintf(w, "DENY   %s: %s\n", subject, out.Reason)
			}
		}
	}

	if out.Decision == "deny" {
		return errFailed
	}
	return nil
}
