package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jensholdgaard/penalty-kitty/internal/bot/commands"
	"github.com/jensholdgaard/penalty-kitty/internal/money"
	"github.com/jensholdgaard/penalty-kitty/internal/reconcile"
)

func newSyncCmd(configPath *string) *cobra.Command {
	var (
		from    string
		to      string
		groupID string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass and print the report",
		Example: `  kittybot sync
  kittybot sync --from 01.01.2026
  kittybot sync --from 2026-01-01 --to 2026-01-31 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req reconcile.Request
			if from != "" {
				day, err := commands.ParseDate(from)
				if err != nil {
					return err
				}
				req.From = day
			}
			if to != "" {
				day, err := commands.ParseDate(to)
				if err != nil {
					return err
				}
				req.To = day.AddDate(0, 0, 1)
			}

			ctx := cmd.Context()
			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			req.GroupID = a.cfg.Spond.GroupID
			if groupID != "" {
				req.GroupID = groupID
			}
			req.PenaltyAmount = a.cfg.Kitty.NoReplyPenalty

			res, err := a.engine.Run(ctx, req)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(cmd.OutOrStdout(), res, money.Format(req.PenaltyAmount, a.cfg.Kitty.Currency))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "start date (DD.MM.YYYY, YYYY-MM-DD or DD/MM/YYYY); default is the configured lookback")
	cmd.Flags().StringVar(&to, "to", "", "last day to include; default is now")
	cmd.Flags().StringVar(&groupID, "group", "", "group id; overrides spond.group_id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printResult(w io.Writer, res *reconcile.Result, amount string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Group\t%s\n", res.GroupID)
	fmt.Fprintf(tw, "Window\t%s – %s\n", res.From.Format("02.01.2006 15:04"), res.To.Format("02.01.2006 15:04"))
	fmt.Fprintf(tw, "Events checked\t%d\n", res.EventsChecked)
	fmt.Fprintf(tw, "Cancelled\t%d\n", res.SkippedCancelled)
	fmt.Fprintf(tw, "Deadline still open\t%d\n", res.SkippedExpired)
	fmt.Fprintf(tw, "Players synced\t%d\n", res.PlayersSynced)
	fmt.Fprintf(tw, "New penalties\t%d (%s each)\n", res.NewPenalties, amount)
	_ = tw.Flush()

	for _, d := range res.Details {
		fmt.Fprintln(w, "  "+d)
	}
}

func newGroupsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the groups visible to the scheduling account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			groups, err := a.spond.Groups(ctx)
			if err != nil {
				return fmt.Errorf("listing groups: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tMEMBERS\t")
			for _, g := range groups {
				marker := ""
				if g.ID == a.cfg.Spond.GroupID {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s\t%s%s\t%d\t\n", g.ID, g.Name, marker, len(g.Members))
			}
			return tw.Flush()
		},
	}
}
