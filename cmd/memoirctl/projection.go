package main

import (
	"fmt"

	"github.com/spf13/cobra"

	models "memoir/internal/domain/models/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
)

var narrativeCmd = &cobra.Command{
	Use:   "narrative",
	Short: "Maintain narrative contexts",
}

var narrativeSyncCmd = &cobra.Command{
	Use:   "sync <project-id>",
	Short: "Fold new content into a project's narrative context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := a.Narrative.Sync(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Processed %d item(s), %d pending, high-water mark %d\n",
			result.Processed, len(result.Pending), result.Context.LastProcessedSequence)
		return nil
	},
}

var projectionCmd = &cobra.Command{
	Use:   "projection",
	Short: "Work with projections",
}

var (
	updateMode     string
	updateSections []string
	updateContent  []string
)

var projectionUpdateCmd = &cobra.Command{
	Use:   "update <projection-id>",
	Short: "Run an update and print the per-section report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := a.Engine.Update(cmd.Context(), &memoirSvc.UpdateRequest{
			ProjectionID: args[0],
			Mode:         models.UpdateMode(updateMode),
			SectionIDs:   updateSections,
			ContentIDs:   updateContent,
			UserID:       "memoirctl",
		})
		if result != nil {
			if printErr := printJSON(cmd, result); printErr != nil {
				return printErr
			}
		}
		return err
	},
}

var exportFormat string

var projectionExportCmd = &cobra.Command{
	Use:   "export <projection-id>",
	Short: "Print a projection as markdown or html",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		export, err := a.Projections.Export(cmd.Context(), args[0], exportFormat)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), export.Body)
		return err
	},
}

func init() {
	projectionUpdateCmd.Flags().StringVar(&updateMode, "mode", "", "generate, evolve, regenerate, refresh or append (default: the projection's)")
	projectionUpdateCmd.Flags().StringSliceVar(&updateSections, "section", nil, "limit the update to these section ids")
	projectionUpdateCmd.Flags().StringSliceVar(&updateContent, "content", nil, "content ids to integrate (append mode)")
	projectionExportCmd.Flags().StringVar(&exportFormat, "format", memoirSvc.ExportMarkdown, "markdown or html")

	narrativeCmd.AddCommand(narrativeSyncCmd)
	projectionCmd.AddCommand(projectionUpdateCmd, projectionExportCmd)
}
