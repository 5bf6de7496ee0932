package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Navneet-55/msmesolut/internal/agent"
	"github.com/Navneet-55/msmesolut/internal/store"
)

var (
	runsOrg   string
	runsType  string
	runsLimit int
	runsJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded agent runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "runs.list")
		defer span.End()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.dispatcher.ListRuns(ctx, runsOrg, runsType, runsLimit)
		if err != nil {
			return err
		}
		if runsJSON {
			return printJSON(os.Stdout, runs)
		}
		renderRuns(os.Stdout, runs)
		return nil
	},
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show one run with its logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "runs.get")
		defer span.End()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.dispatcher.GetRun(ctx, runsOrg, args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found in organization %s", args[0], runsOrg)
		}
		if runsJSON {
			return printJSON(os.Stdout, run)
		}
		return renderRun(os.Stdout, run)
	},
}

func init() {
	for _, c := range []*cobra.Command{runsListCmd, runsGetCmd} {
		c.Flags().StringVar(&runsOrg, "org", "", "Organization ID")
		c.Flags().BoolVar(&runsJSON, "json", false, "Print JSON instead of a table")
		_ = c.MarkFlagRequired("org")
	}
	runsListCmd.Flags().StringVar(&runsType, "type", "", "Only runs of this agent type")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", agent.DefaultRunLimit, "Maximum number of runs")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsGetCmd)
	rootCmd.AddCommand(runsCmd)
}

func renderRuns(w io.Writer, runs []store.AgentRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-38s %-18s %-10s %-20s %s\n", "ID", "AGENT", "STATUS", "STARTED", "DURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%-38s %-18s %-10s %-20s %s\n",
			r.ID, r.AgentType, r.Status,
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			formatDuration(r.StartedAt, r.CompletedAt))
	}
}

func renderRun(w io.Writer, r *store.AgentRun) error {
	fmt.Fprintf(w, "Run:      %s\n", r.ID)
	fmt.Fprintf(w, "Agent:    %s\n", r.AgentType)
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(r.StartedAt, r.CompletedAt))
	links := []struct{ label, id string }{
		{"Ticket:", r.TicketID}, {"Campaign:", r.CampaignID}, {"Lead:", r.LeadID},
	}
	for _, l := range links {
		if l.id != "" {
			fmt.Fprintf(w, "%-9s %s\n", l.label, l.id)
		}
	}
	if r.Reasoning != "" {
		fmt.Fprintf(w, "Reasoning: %s\n", truncate(r.Reasoning, 200))
	}
	if r.Output != nil {
		out, err := json.MarshalIndent(r.Output, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Output:\n%s\n", out)
	}
	if len(r.Logs) > 0 {
		fmt.Fprintln(w, "Logs:")
		for _, l := range r.Logs {
			fmt.Fprintf(w, "  [%s] %s\n", strings.ToUpper(l.Level), l.Message)
		}
	}
	return nil
}
