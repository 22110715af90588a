package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/korjavin/studybot/experiment"
	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Load a stimulus document and check it against an experiment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.StimuliPath
			if len(args) == 1 {
				path = args[0]
			}
			if name == "" {
				name = a.cfg.Experiment
			}

			variant, err := experiment.VariantByName(name)
			if err != nil {
				return err
			}
			doc, err := experiment.LoadDocument(path, variant)
			if err != nil {
				return err
			}

			conditions := make([]string, 0, len(variant.Conditions))
			for _, c := range variant.Conditions {
				conditions = append(conditions, c.String())
			}

			t := newTable(cmd.OutOrStdout())
			t.SetTitle(fmt.Sprintf("%s: %s", path, variant.Name))
			t.AppendRows([]table.Row{
				{"stimuli", len(doc.Stim)},
				{"introduction slides", len(doc.Intro)},
				{"introduction videos", len(doc.Videos)},
				{"conditions", strings.Join(conditions, ", ")},
				{"comprehension questions", strings.Join(variant.Key.IDs(), ", ")},
				{"bot check", variant.BotCheck},
			})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "experiment", "", "experiment to validate against (default $EXPERIMENT)")
	return cmd
}
