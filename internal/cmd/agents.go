package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Navneet-55/msmesolut/internal/agent"
)

var (
	runOrg    string
	runType   string
	runInput  string
	runEntity string
	runUser   string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agent types and their actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "agents")
		defer span.End()

		renderAgents(os.Stdout, agent.Types())
		return nil
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run agents",
}

var agentRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one agent action for an organization and print the result",
	Example: `  lumina agent run --org org_123 --type financial --input '{"action":"analyze_cash_flow"}'
  lumina agent run --org org_123 --type sales_lead --input '{"action":"score_lead","leadId":"lead_1"}' --entity lead_1`,
	RunE: agentRun,
}

func init() {
	agentRunCmd.Flags().StringVar(&runOrg, "org", "", "Organization ID")
	agentRunCmd.Flags().StringVar(&runType, "type", "", "Agent type (see `lumina agents`)")
	agentRunCmd.Flags().StringVar(&runInput, "input", "", "Input JSON object including \"action\"")
	agentRunCmd.Flags().StringVar(&runEntity, "entity", "", "Ticket, campaign or lead to link the run to")
	agentRunCmd.Flags().StringVar(&runUser, "user", "", "Acting user ID (optional)")
	_ = agentRunCmd.MarkFlagRequired("org")
	_ = agentRunCmd.MarkFlagRequired("type")
	_ = agentRunCmd.MarkFlagRequired("input")

	agentCmd.AddCommand(agentRunCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(agentCmd)
}

func agentRun(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "agent.run")
	defer span.End()

	input, err := parseInput(runInput)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.tenants.CheckRunQuota(ctx, runOrg); err != nil {
		return err
	}
	plan, err := a.plan(ctx, runOrg)
	if err != nil {
		return err
	}
	res, err := a.dispatcher.Run(ctx, agent.RunRequest{
		OrganizationID: runOrg,
		Plan:           plan,
		UserID:         runUser,
		AgentType:      runType,
		Input:          input,
		EntityID:       runEntity,
	})
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, res)
}

// parseInput decodes the --input flag into a JSON object.
func parseInput(raw string) (map[string]any, error) {
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("--input must be a JSON object: %w", err)
	}
	if input == nil {
		return nil, fmt.Errorf("--input must be a JSON object")
	}
	return input, nil
}

func renderAgents(w io.Writer, types []agent.Type) {
	for _, t := range types {
		actions := make([]string, 0, 3)
		for _, a := range t.Actions() {
			actions = append(actions, string(a))
		}
		line := fmt.Sprintf("  %-18s %s", t, strings.Join(actions, ", "))
		if f := t.EntityField(); f != "" {
			line += "  (links " + f + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
