package cmd

import (
	"encoding/csv"
	"errors"
	"strconv"
	"time"

	"github.com/korjavin/studybot/database"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print a session's trial data as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}

			db, err := database.New(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.GetTrialData(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			w := csv.NewWriter(cmd.OutOrStdout())
			w.Write([]string{"session_id", "trial_index", "stimulus", "presentation_order", "condition", "response", "recorded_at"})
			for _, rec := range records {
				w.Write([]string{
					rec.SessionID,
					strconv.Itoa(rec.TrialIndex),
					rec.StimulusRef,
					rec.PresentationOrder,
					rec.Condition.Key(),
					rec.Response,
					rec.RecordedAt.Format(time.RFC3339),
				})
			}
			w.Flush()
			return w.Error()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to export")
	return cmd
}
