package commands

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/cmd/atelier/ui"
	"github.com/atelier-ai/atelier/pkg/atelier"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <session-id> <file>...",
	Short: "Upload PDF or image files into a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		files := args[1:]

		c := client()
		bar := ui.NewProgressBar(int64(len(files)), "uploading")

		var created []*atelier.Page
		for _, path := range files {
			pages, err := c.Upload(cmd.Context(), id, path)
			if err != nil {
				bar.Finish()
				return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
			}
			created = append(created, pages...)
			bar.Add(1)
		}
		bar.Finish()

		if jsonMode {
			return printJSON(created)
		}
		ui.Success("Uploaded %d file(s) as %d page(s)", len(files), len(created))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
