package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/cmd/atelier/ui"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session's artifacts to a directory",
	Long: `Export writes everything the session produced: session metadata, the
transcript, the blueprint and workflow as JSON and PNG, the canvas
state and rendering, and the background image when one exists.
Artifacts the session has not produced yet are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}

		dir := exportDir
		if dir == "" {
			dir = "atelier-" + id.String()
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		c := client()
		ctx := cmd.Context()
		exported := 0

		session, err := c.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if err := writeArtifactJSON(dir, "session.json", session); err != nil {
			return err
		}
		exported++

		if messages, err := c.Transcript(ctx, id); err == nil && len(messages) > 0 {
			if err := writeArtifactJSON(dir, "transcript.json", messages); err != nil {
				return err
			}
			exported++
		}

		if bp, err := c.Blueprint(ctx, id); err == nil {
			if err := writeArtifactJSON(dir, "blueprint.json", bp); err != nil {
				return err
			}
			if png, err := c.RenderBlueprint(ctx, id); err == nil {
				if err := os.WriteFile(filepath.Join(dir, "blueprint.png"), png, 0o644); err != nil {
					return err
				}
			}
			exported++
		}

		if graph, err := c.Workflow(ctx, id); err == nil {
			if err := writeArtifactJSON(dir, "workflow.json", graph); err != nil {
				return err
			}
			if png, err := c.RenderWorkflow(ctx, id); err == nil {
				if err := os.WriteFile(filepath.Join(dir, "workflow.png"), png, 0o644); err != nil {
					return err
				}
			}
			exported++
		}

		if asset, err := c.Canvas(ctx, id); err == nil && len(asset.Nodes) > 0 {
			if err := writeArtifactJSON(dir, "canvas.json", asset); err != nil {
				return err
			}
			if png, err := c.RenderCanvas(ctx, id); err == nil {
				if err := os.WriteFile(filepath.Join(dir, "canvas.png"), png, 0o644); err != nil {
					return err
				}
			}
			if bg, mediaType, err := c.Background(ctx, id); err == nil {
				name := "background.png"
				if mediaType == "image/jpeg" {
					name = "background.jpg"
				}
				if err := os.WriteFile(filepath.Join(dir, name), bg, 0o644); err != nil {
					return err
				}
			}
			exported++
		}

		ui.Success("Exported %d artifact(s) to %s", exported, dir)
		return nil
	},
}

func writeArtifactJSON(dir, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "dir", "d", "", "output directory (default atelier-<session-id>)")
	rootCmd.AddCommand(exportCmd)
}
