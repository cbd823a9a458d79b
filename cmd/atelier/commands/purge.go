package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/cmd/atelier/ui"
)

var (
	purgeAll   bool
	purgeForce bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge [session-id]...",
	Short: "Delete sessions permanently",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		ctx := cmd.Context()

		var ids []uuid.UUID
		if purgeAll {
			sessions, err := c.ListSessions(ctx)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
		} else {
			if len(args) == 0 {
				return fmt.Errorf("pass session ids or --all")
			}
			for _, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid session id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}
		}

		if len(ids) == 0 {
			ui.Info("Nothing to purge")
			return nil
		}

		if !purgeForce {
			ui.Warning("About to permanently delete %d session(s)", len(ids))
			fmt.Fprint(os.Stderr, "Type 'yes' to continue: ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(answer) != "yes" {
				ui.Info("Aborted")
				return nil
			}
		}

		deleted := 0
		for _, id := range ids {
			if err := c.DeleteSession(ctx, id); err != nil {
				ui.Error("Delete %s failed: %v", id, err)
				continue
			}
			deleted++
		}
		ui.Success("Deleted %d of %d session(s)", deleted, len(ids))
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeAll, "all", false, "delete every session")
	purgeCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "skip the confirmation prompt")
	rootCmd.AddCommand(purgeCmd)
}
