package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/chaingate/internal/client"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/policy"
)

var (
	ksReason   string
	ksDuration time.Duration
	ksServer   string
)

func init() {
	rootCmd.AddCommand(killswitchCmd)
	killswitchCmd.AddCommand(killswitchOffCmd)
	killswitchCmd.AddCommand(killswitchOnCmd)
	killswitchCmd.AddCommand(killswitchListCmd)
	killswitchCmd.AddCommand(killswitchRevokeCmd)

	killswitchOffCmd.Flags().StringVar(&ksReason, "reason", "", "Mandatory reason for disabling enforcement (required)")
	killswitchOffCmd.Flags().DurationVar(&ksDuration, "duration", 10*time.Minute, "Override validity period (max 1h, 0 until restored)")
	_ = killswitchOffCmd.MarkFlagRequired("reason")
	for _, c := range []*cobra.Command{killswitchOffCmd, killswitchOnCmd} {
		c.Flags().StringVar(&ksServer, "server", "", "Toggle the in-memory state of a running gate service at this address")
	}
}

var killswitchCmd = &cobra.Command{
	Use:   "killswitch",
	Short: "Disable or restore enforcement of a mechanism",
	Long:  "Kill-switches turn denials of one mechanism (role, class or path) into audited bypasses\nto recover from a false positive. Tokens are written to the token directory, which a\nrunning gate service watches.",
}

var killswitchOffCmd = &cobra.Command{
	Use:   "off <mechanism>",
	Short: "Stop enforcing a mechanism",
	Args:  cobra.ExactArgs(1),
	RunE:  runKillswitchOff,
}

var killswitchOnCmd = &cobra.Command{
	Use:   "on <mechanism>",
	Short: "Restore enforcement of a mechanism",
	Args:  cobra.ExactArgs(1),
	RunE:  runKillswitchOn,
}

var killswitchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List kill-switch tokens",
	RunE:  runKillswitchList,
}

var killswitchRevokeCmd = &cobra.Command{
	Use:   "revoke <token-id>",
	Short: "Revoke a kill-switch token",
	Args:  cobra.ExactArgs(1),
	RunE:  runKillswitchRevoke,
}

func parseMechanism(s string) (model.Mechanism, error) {
	mech, ok := model.ParseMechanism(s)
	if !ok {
		return "", fmt.Errorf("unknown mechanism %q (want role, class or path)", s)
	}
	return mech, nil
}

func runKillswitchOff(cmd *cobra.Command, args []string) error {
	mech, err := parseMechanism(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if ksServer != "" {
		c, err := client.New(ksServer)
		if err != nil {
			return err
		}
		defer c.Close()
		ks, err := c.SetKillSwitch(cmd.Context(), mech, false, ksReason, ksDuration)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s enforcement disabled on %s\n", mech, ksServer)
		fmt.Fprintf(w, "Token: %s\n", ks.TokenID)
		if !ks.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "Expires: %s\n", ks.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	}

	tokens, err := openTokens()
	if err != nil {
		return err
	}
	token, err := tokens.Create(mech, ksReason, ksDuration)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s enforcement disabled\n", mech)
	fmt.Fprintf(w, "Token: %s\n", token.ID)
	if token.ExpiresAt.IsZero() {
		fmt.Fprintln(w, "Expires: never (restore with: chaingate killswitch on "+string(mech)+")")
	} else {
		fmt.Fprintf(w, "Expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Reason: %s\n", token.Reason)
	fmt.Fprintln(os.Stderr, "WARNING: denials of this mechanism are now logged as bypasses and allowed.")
	return nil
}

func runKillswitchOn(cmd *cobra.Command, args []string) error {
	mech, err := parseMechanism(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if ksServer != "" {
		c, err := client.New(ksServer)
		if err != nil {
			return err
		}
		defer c.Close()
		ks, err := c.SetKillSwitch(cmd.Context(), mech, true, "", 0)
		if err != nil {
			return err
		}
		if !ks.Enabled {
			return fmt.Errorf("%s enforcement is still disabled on %s", mech, ksServer)
		}
		fmt.Fprintf(w, "%s enforcement restored on %s\n", mech, ksServer)
		return nil
	}

	tokens, err := openTokens()
	if err != nil {
		return err
	}
	store, err := policy.Open(policyPath, policy.Options{Logger: slog.Default(), Tokens: tokens})
	if err != nil {
		return fmt.Errorf("failed to load policy config: %w", err)
	}
	if _, err := store.Toggle(mech, true, "", 0); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s enforcement restored\n", mech)
	return nil
}

func runKillswitchList(cmd *cobra.Command, args []string) error {
	tokens, err := openTokens()
	if err != nil {
		return err
	}
	list, err := tokens.List()
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No kill-switch tokens.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMECHANISM\tSTATUS\tEXPIRES\tREASON")
	for _, t := range list {
		st := "active"
		switch {
		case t.RevokedAt != nil:
			st = "revoked"
		case !t.IsActive():
			st = "expired"
		}
		expires := "never"
		if !t.ExpiresAt.IsZero() {
			expires = t.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Mechanism, st, expires, t.Reason)
	}
	return tw.Flush()
}

func runKillswitchRevoke(cmd *cobra.Command, args []string) error {
	tokens, err := openTokens()
	if err != nil {
		return err
	}
	if err := tokens.Revoke(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token %s revoked\n", args[0])
	return nil
}
