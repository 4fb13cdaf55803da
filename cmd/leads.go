package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/harvest-cli/internal/model"
	"github.com/sells-group/harvest-cli/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List stored leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		source, _ := cmd.Flags().GetString("source")
		saleType, _ := cmd.Flags().GetString("sale-type")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		leads, err := st.ListLeads(ctx, store.LeadFilter{
			Source:   source,
			SaleType: model.SaleType(saleType),
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "leads list")
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(leads)
		}

		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

func init() {
	leadsCmd.Flags().String("source", "", "filter by source name")
	leadsCmd.Flags().String("sale-type", "", "filter by sale type (ico, ido, ieo, presale, seed)")
	leadsCmd.Flags().Int("limit", 100, "max number of leads to display")
	leadsCmd.Flags().Bool("json", false, "output leads as JSON")
	rootCmd.AddCommand(leadsCmd)
}

// formatLeadsList writes a tabular list of leads to w.
func formatLeadsList(out io.Writer, leads []model.LeadRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tDOMAIN\tSALE_TYPE\tRAISED\tSOURCE\tSOCIALS")
	_, _ = fmt.Fprintln(w, "----\t------\t---------\t------\t------\t-------")

	for _, l := range leads {
		name := l.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			name,
			l.Domain,
			l.SaleType,
			l.Raised,
			l.Source,
			len(l.Socials),
		)
	}
	_ = w.Flush()
}
