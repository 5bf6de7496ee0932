package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Navneet-55/msmesolut/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo organization, user and sample business data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "seed")
		defer span.End()

		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := st.Seed(ctx)
		if errors.Is(err, store.ErrAlreadySeeded) {
			fmt.Fprintf(os.Stdout, "Demo data already present (login %s).\n", store.DemoEmail)
			return nil
		}
		if err != nil {
			return fmt.Errorf("seeding: %w", err)
		}
		renderSeed(os.Stdout, res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func renderSeed(w io.Writer, res *store.SeedResult) {
	fmt.Fprintln(w, "Demo data created.")
	fmt.Fprintf(w, "  Organization: %s (%s)\n", res.OrganizationID, store.DemoOrgSlug)
	fmt.Fprintf(w, "  Login:        %s / %s\n", store.DemoEmail, store.DemoPassword)
	fmt.Fprintf(w, "  Tickets:      %d\n", len(res.TicketIDs))
	fmt.Fprintf(w, "  Leads:        %d\n", len(res.LeadIDs))
	fmt.Fprintf(w, "  Products:     %d\n", len(res.ProductIDs))
	fmt.Fprintf(w, "\nTry: lumina agent run --org %s --type financial --input '{\"action\":\"analyze_cash_flow\"}'\n", res.OrganizationID)
}
