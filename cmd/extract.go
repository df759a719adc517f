package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [document-id]",
	Short: "Extract financial metadata from a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	documentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Extract.ExtractMetadata(ctx, documentID)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(os.Stderr, "Extraction completed with errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
	}
	return nil
}
