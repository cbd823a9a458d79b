package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/cmd/atelier/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat <session-id> <message>...",
	Short: "Send a chat message and stream the reply",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		text := strings.Join(args[1:], " ")

		c := client()
		if jsonMode {
			reply, err := c.Chat(cmd.Context(), id, text)
			if err != nil {
				return err
			}
			return printJSON(reply)
		}

		deltas := make(chan string, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for delta := range deltas {
				fmt.Fprint(os.Stdout, delta)
			}
		}()

		reply, err := c.ChatStream(cmd.Context(), id, text, deltas)
		<-done
		fmt.Fprintln(os.Stdout)
		if err != nil {
			return err
		}
		if reply != nil && reply.IsError {
			ui.Warning("The model could not answer this turn")
		}
		return nil
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <session-id>",
	Short: "Print the session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		messages, err := client().Transcript(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonMode {
			return printJSON(messages)
		}
		for _, m := range messages {
			prefix := "you"
			if m.Role == "assistant" {
				prefix = "atelier"
			}
			if m.IsError {
				prefix += " (error)"
			}
			ui.Message("[%s] %s", prefix, m.Text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd, transcriptCmd)
}
