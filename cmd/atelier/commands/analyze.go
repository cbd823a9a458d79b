package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/cmd/atelier/ui"
	"github.com/atelier-ai/atelier/pkg/atelier"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <session-id>",
	Short: "Analyze the session's documents",
	Long: `Analyze runs page-by-page text extraction and derives the agent
architecture blueprint. Progress arrives over the session event feed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}

		c := client()
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Subscribe before kicking off so no early event is missed.
		events, err := c.Events(ctx, id)
		if err != nil {
			return err
		}
		if err := c.Analyze(ctx, id); err != nil {
			return err
		}

		spin := ui.NewSpinner("waiting for analysis to start")
		spin.Start()

		var pages *ui.MultiProgress
		for ev := range events {
			switch ev.Type {
			case atelier.EventStart:
				spin.Stop()
				pages = ui.NewMultiProgress("pages", int64(ev.PageCount))
			case atelier.EventPageComplete:
				if pages != nil {
					pages.Increment()
				}
			case atelier.EventComplete:
				if pages != nil {
					pages.Wait()
				}
				ui.Success("Analysis complete; session is ready to chat")
				return nil
			case atelier.EventError:
				spin.Stop()
				if pages != nil {
					pages.Wait()
				}
				return fmt.Errorf("analysis failed: %s", ev.Message)
			}
		}
		spin.Stop()
		return fmt.Errorf("event feed closed before analysis finished")
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
