package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var disputesCmd = &cobra.Command{
	Use:   "disputes",
	Short: "Look up disputes directly in the carrier portals",
}

var disputesShowCmd = &cobra.Command{
	Use:   "show CARRIER DISPUTE_ID",
	Short: "Show a dispute as the carrier API returns it",
	Long: `Fetches one dispute from the carrier API. For Maersk the comments and attachments
of the dispute are fetched as well.`,
	Example: `  disputa disputes show maersk 4711 --customer 305S3073SPA
  disputa disputes show hapag 77001 --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		customer, _ := cmd.Flags().GetString("customer")
		asJSON, _ := cmd.Flags().GetBool("json")
		comments, _ := cmd.Flags().GetInt("comments")

		c, err := f.Carrier(args[0])
		if err != nil {
			return err
		}
		ctx := core.WithRunID(cmd.Context(), "")
		id := args[1]

		out := struct {
			Dispute     core.Dispute     `json:"dispute"`
			Comments    []map[string]any `json:"comments,omitempty"`
			Attachments []map[string]any `json:"attachments,omitempty"`
		}{}

		if c.Hapag != nil {
			out.Dispute, err = c.Hapag.GetDispute(ctx, id)
			if err != nil {
				return logError(err, core.RunID(ctx), "could not fetch dispute")
			}
		} else {
			if customer == "" {
				if len(c.Scopes) != 1 {
					return fmt.Errorf("carrier '%s' has several customers, choose one with --customer", c.Name)
				}
				customer = c.Scopes[0]
			}
			out.Dispute, err = c.Maersk.GetDisputeDetails(ctx, customer, id)
			if err != nil {
				return logError(err, core.RunID(ctx), "could not fetch dispute")
			}
			if out.Comments, err = c.Maersk.GetDisputeComments(ctx, customer, id, comments, 0); err != nil {
				log.Warn().Err(err).Msg("could not fetch comments")
			}
			if out.Attachments, err = c.Maersk.GetDisputeAttachments(ctx, customer, id); err != nil {
				log.Warn().Err(err).Msg("could not fetch attachments")
			}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		d := out.Dispute
		amount := ""
		if d.Amount != nil {
			amount = fmt.Sprintf("%.2f %s", *d.Amount, d.Currency)
		}
		t := newTable("Field", "Value")
		for _, row := range []table.Row{
			{"Dispute", bold(d.Number)},
			{"Invoice", d.InvoiceNumber},
			{"Status", d.Status},
			{"Status code", d.StatusCode},
			{"Amount", amount},
			{"Reason", truncate(d.ReasonCode+" "+d.ReasonDescription, 60)},
			{"Type", d.Type},
			{"Agent", d.AgentName + " " + faint(d.AgentEmail)},
			{"Created", d.CreatedAt},
			{"Last modified", d.LastModifiedAt},
		} {
			if row[1] != "" {
				t.AppendRow(row)
			}
		}
		t.Render()

		if c.Maersk != nil {
			fmt.Printf("%s %d comment(s), %d attachment(s) (use --json to see them)\n",
				faint("›"), len(out.Comments), len(out.Attachments))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disputesCmd)
	disputesCmd.AddCommand(disputesShowCmd)

	disputesShowCmd.Flags().String("customer", "", "Maersk customer code")
	disputesShowCmd.Flags().Bool("json", false, "Print the dispute, comments and attachments as JSON")
	disputesShowCmd.Flags().Int("comments", 20, "Number of comments to fetch (Maersk)")
}
