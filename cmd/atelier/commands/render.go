package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/cmd/atelier/ui"
)

var renderOutput string

// renderCommand builds a render-to-file command for one artifact.
func renderCommand(name, short string, fetchJSON func(ctx context.Context, id uuid.UUID) (interface{}, error), fetchPNG func(ctx context.Context, id uuid.UUID) ([]byte, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}

			if jsonMode {
				v, err := fetchJSON(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(v)
			}

			data, err := fetchPNG(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := renderOutput
			if out == "" {
				out = fmt.Sprintf("%s-%s.png", name, id)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			ui.Success("Wrote %s (%d bytes)", out, len(data))
			return nil
		},
	}
}

func init() {
	blueprintCmd := renderCommand("blueprint", "Render the architecture blueprint",
		func(ctx context.Context, id uuid.UUID) (interface{}, error) { return client().Blueprint(ctx, id) },
		func(ctx context.Context, id uuid.UUID) ([]byte, error) { return client().RenderBlueprint(ctx, id) },
	)
	workflowCmd := renderCommand("workflow", "Render the theory-to-component workflow graph",
		func(ctx context.Context, id uuid.UUID) (interface{}, error) { return client().Workflow(ctx, id) },
		func(ctx context.Context, id uuid.UUID) ([]byte, error) { return client().RenderWorkflow(ctx, id) },
	)
	canvasCmd := renderCommand("canvas", "Render the diagram canvas",
		func(ctx context.Context, id uuid.UUID) (interface{}, error) { return client().Canvas(ctx, id) },
		func(ctx context.Context, id uuid.UUID) ([]byte, error) { return client().RenderCanvas(ctx, id) },
	)

	for _, cmd := range []*cobra.Command{blueprintCmd, workflowCmd, canvasCmd} {
		cmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output file path")
		rootCmd.AddCommand(cmd)
	}
}
