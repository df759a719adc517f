package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	chatDocumentID string
	chatSessionID  string
	showSources    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with an ingested document",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatDocumentID, "document", "d", "", "document ID to scope retrieval to")
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "resume an existing chat session")
	chatCmd.Flags().BoolVar(&showSources, "sources", false, "show retrieved source previews after each answer")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	documentID, err := parseOptionalUUID(chatDocumentID)
	if err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}
	sessionID, err := parseOptionalUUID(chatSessionID)
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("FinSight chat. Type your question, or /exit to quit.")
	if documentID != uuid.Nil {
		fmt.Printf("Scoped to document %s\n", documentID)
	}
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye.")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" || input == "/quit" {
			fmt.Println("Goodbye.")
			break
		}

		result, err := a.Chat.Chat(ctx, input, sessionID, documentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		sessionID = result.SessionID

		fmt.Println()
		fmt.Println(result.Message)
		if showSources && len(result.SourcesUsed) > 0 {
			fmt.Println("\nSources:")
			for _, src := range result.SourcesUsed {
				fmt.Printf("  - page %d (%.2f): %s\n", src.PageNumber, src.SimilarityScore, src.Preview)
			}
		}
		fmt.Println()
	}
	return scanner.Err()
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
