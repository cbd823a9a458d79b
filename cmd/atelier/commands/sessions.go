package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/cmd/atelier/ui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage analysis sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := client().ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if jsonMode {
			return printJSON(sessions)
		}
		if len(sessions) == 0 {
			ui.Info("No sessions yet. Create one with: atelier sessions create")
			return nil
		}

		rows := make([][]string, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, []string{
				s.ID.String(),
				s.Title,
				string(s.Mode),
				s.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		ui.Table([]string{"ID", "TITLE", "MODE", "CREATED"}, rows)
		return nil
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := ""
		if len(args) > 0 {
			title = args[0]
		}
		session, err := client().CreateSession(cmd.Context(), title)
		if err != nil {
			return err
		}
		if jsonMode {
			return printJSON(session)
		}
		ui.Success("Created session %s (%s)", session.Title, session.ID)
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session and its pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}

		c := client()
		session, err := c.GetSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		pages, err := c.ListPages(cmd.Context(), id)
		if err != nil {
			return err
		}

		if jsonMode {
			return printJSON(map[string]interface{}{"session": session, "pages": pages})
		}

		ui.KeyValue("ID", session.ID.String())
		ui.KeyValue("Title", session.Title)
		ui.KeyValue("Mode", string(session.Mode))
		ui.KeyValue("Created", session.CreatedAt.Format("2006-01-02 15:04:05"))
		ui.Newline()

		if len(pages) == 0 {
			ui.Info("No pages uploaded yet")
			return nil
		}
		rows := make([][]string, 0, len(pages))
		for _, p := range pages {
			rows = append(rows, []string{
				fmt.Sprintf("%d", p.PageNumber),
				p.ID.String(),
				p.MediaType,
			})
		}
		ui.Table([]string{"PAGE", "ID", "TYPE"}, rows)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and all its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		if err := client().DeleteSession(cmd.Context(), id); err != nil {
			return err
		}
		ui.Success("Deleted session %s", id)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsCreateCmd, sessionsShowCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
