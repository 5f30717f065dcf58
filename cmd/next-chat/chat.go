package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashwinyue/next-chat/internal/client"
)

var (
	chatServer  string
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message to a running server and print the streamed reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c := client.New(chatServer, &http.Client{Timeout: 3 * time.Minute})

		sessionID := chatSession
		if sessionID == "" {
			id, err := c.CreateSession(ctx)
			if err != nil {
				return err
			}
			sessionID = id
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", sessionID)
		}

		out := cmd.OutOrStdout()
		_, err := c.Send(ctx, sessionID, strings.Join(args, " "), func(chunk string) {
			fmt.Fprint(out, chunk)
		})
		fmt.Fprintln(out)

		var se *client.StreamError
		if errors.As(err, &se) {
			return fmt.Errorf("reply interrupted: %s", se.Reason)
		}
		return err
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "http://localhost:3000", "base URL of the chat server")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "existing session id (a new session is created when empty)")
}
