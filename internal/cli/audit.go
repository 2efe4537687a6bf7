package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/chaingate/internal/audit"
)

var (
	auditScope     string
	auditMechanism string
	auditEvent     string
	auditSince     time.Duration
	auditFormat    string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditQueryCmd)
	auditQueryCmd.Flags().StringVar(&auditScope, "scope", "", "Only entries of this request scope")
	auditQueryCmd.Flags().StringVar(&auditMechanism, "mechanism", "", "Only entries of this mechanism (role|class|path)")
	auditQueryCmd.Flags().StringVar(&auditEvent, "event", "", "Only entries of this event (deny|bypass|killswitch)")
	auditQueryCmd.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this (e.g. 30m)")
	auditQueryCmd.Flags().StringVarP(&auditFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the BLAKE3 hash of the previous line. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query <path>",
	Short: "Show a timeline of audit entries",
	Long:  "Reads the audit log and prints the matching deny, bypass and kill-switch entries\nwith a summary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditQuery,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return errFailed
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	f := audit.Filter{
		Scope:     auditScope,
		Mechanism: auditMechanism,
		Event:     audit.Event(auditEvent),
	}
	if auditSince > 0 {
		f.From = time.Now().Add(-auditSince)
	}
	result, err := audit.Query(args[0], f)
	if err != nil {
		return err
	}

	if auditFormat == "json" {
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(result))
	return nil
}
