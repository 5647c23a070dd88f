package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewHistoryCmd lists the caller's past attempts, newest first.
func NewHistoryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your quiz attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			session, err := rt.session(ctx)
			if err != nil {
				return err
			}
			rows, err := rt.client.Attempts(ctx, session.UserID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No attempts yet.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ATTEMPT\tQUIZ\tTITLE\tSCORE\tPERCENT\tSTATUS")
			for _, row := range rows {
				status := "in progress"
				if row.EndTime != nil {
					status = "completed " + row.EndTime.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d%%\t%s\n", row.AttemptID, row.QuizID, row.QuizTitle, row.Score, row.Percentage, status)
			}
			return tw.Flush()
		},
	}
}
