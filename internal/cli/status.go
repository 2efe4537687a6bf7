package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/chaingate/internal/client"
	"github.com/ppiankov/chaingate/internal/gate"
)

var (
	statusServer string
	statusFormat string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusServer, "server", "", "Query a running gate service at this address")
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "Output format (text|json)")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which mechanisms are enforced",
	Long:  "Prints the policy fingerprint and, per mechanism, whether it is enforced and\nwhat disabled it (config, env or kill-switch).",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var st gate.Status
	if statusServer != "" {
		c, err := client.New(statusServer)
		if err != nil {
			return err
		}
		defer c.Close()
		remote, err := c.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to query gate service: %w", err)
		}
		st = *remote
	} else {
		g, err := openGate()
		if err != nil {
			return err
		}
		st = g.Status()
	}

	if statusFormat == "json" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	return printStatus(cmd.OutOrStdout(), st)
}

func printStatus(w io.Writer, st gate.Status) error {
	fmt.Fprintf(w, "Policy: %s (version %d)\n\n", st.PolicyHash, st.Version)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MECHANISM\tENFORCED\tSOURCE\tEXPIRES\tREASON")
	for _, m := range st.Mechanisms {
		source, expires := "-", "-"
		if !m.Enforced {
			source = m.Source
			if m.ExpiresAt != nil {
				expires = m.ExpiresAt.Format(time.RFC3339)
			} else if m.Source == "killswitch" {
				expires = "never"
			}
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", m.Mechanism, m.Enforced, source, expires, m.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(st.Banners) > 0 {
		fmt.Fprintln(w)
		for _, b := range st.Banners {
			fmt.Fprintln(w, b)
		}
	}
	return nil
}
