package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// The usage report reads the usage_records table directly; reporting is a
// collaborator of the meter, not part of it, so the query lives here.
func newUsageCmd() *cobra.Command {
	var (
		since    string
		provider string
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Report daily provider usage and estimated cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			from := time.Now().AddDate(0, 0, -7)
			if since != "" {
				parsed, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date %q: %w", since, err)
				}
				from = parsed
			}

			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			rows, err := pool.Query(cmd.Context(), `
				SELECT usage_date, provider, service, usage_count, tokens_used, estimated_cost::text
				FROM usage_records
				WHERE usage_date >= $1
				  AND ($2 = '' OR provider = $2)
				ORDER BY usage_date DESC, provider, service`,
				from.Format("2006-01-02"), provider)
			if err != nil {
				return err
			}
			defer rows.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tPROVIDER\tSERVICE\tCALLS\tTOKENS\tCOST")

			total := decimal.Zero
			for rows.Next() {
				var (
					date                time.Time
					prov, service, cost string
					calls, tokens       int64
				)
				if err := rows.Scan(&date, &prov, &service, &calls, &tokens, &cost); err != nil {
					return err
				}
				c, err := decimal.NewFromString(cost)
				if err != nil {
					return fmt.Errorf("bad cost value %q: %w", cost, err)
				}
				total = total.Add(c)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t$%s\n",
					date.Format("2006-01-02"), prov, service, calls, tokens, c.StringFixed(4))
			}
			if err := rows.Err(); err != nil {
				return err
			}
			fmt.Fprintf(w, "\t\t\t\t\t$%s total\n", total.StringFixed(4))
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD, default 7 days ago)")
	cmd.Flags().StringVar(&provider, "provider", "", "filter by provider")
	return cmd
}
