package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	RunE:  runSessionsList,
}

var sessionsHistoryCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show the message history of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsHistory,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a chat session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsHistoryCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.Store.ListSessions(ctx, 50, 0)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No chat sessions yet.")
		return nil
	}

	for _, s := range sessions {
		scope := "all documents"
		if s.DocumentID != uuid.Nil {
			scope = "document " + s.DocumentID.String()
		}
		fmt.Printf("%s  %-30s  %s  last active %s\n",
			s.ID, s.SessionName, scope, s.LastActivity.Format("2006-01-02 15:04"))
	}
	return nil
}

func runSessionsHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Chat.History(ctx, sessionID, 0)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	for _, e := range entries {
		fmt.Printf("[%s] %s:\n%s\n\n", e.CreatedAt.Format("15:04:05"), e.Role, e.Content)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	fmt.Printf("Deleted session %s\n", sessionID)
	return nil
}
