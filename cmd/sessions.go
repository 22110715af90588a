package cmd

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/korjavin/studybot/database"
	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List participant sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.New(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := db.ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Chat", "Experiment", "Condition", "CB", "Status", "Trials", "Code", "Started"})
			for _, s := range sessions {
				t.AppendRow(table.Row{
					s.ID, s.ChatID, s.Variant, s.Condition.String(), s.Counterbalance,
					s.Status, s.Trials, s.CompletionCode, s.CreatedAt.Format(time.DateTime),
				})
			}
			t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(sessions)})
			t.Render()
			return nil
		},
	}
}
