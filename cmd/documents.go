package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/finsight-ai/finsight/internal/knowledge"
	"github.com/finsight-ai/finsight/internal/store"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage ingested documents",
	RunE:  runDocumentsList,
}

var documentsIngestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a plain-text file into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsIngest,
}

var documentsIngestTitle string

func init() {
	documentsIngestCmd.Flags().StringVarP(&documentsIngestTitle, "title", "t", "", "document title (defaults to the filename)")
	documentsCmd.AddCommand(documentsIngestCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Store.ListDocuments(ctx, 50, 0)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println("No documents yet.")
		return nil
	}

	for _, d := range docs {
		chunks, err := a.Store.CountChunks(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("counting chunks for %s: %w", d.ID, err)
		}
		title := d.Title
		if title == "" {
			title = d.Filename
		}
		fmt.Printf("%s  %-10s  %4d chunks  %s\n", d.ID, d.Status, chunks, title)
	}
	return nil
}

func runDocumentsIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Store.CreateDocument(ctx, filepath.Base(path), documentsIngestTitle, 0, nil)
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	if err := a.Store.UpdateDocumentStatus(ctx, doc.ID, store.DocumentStatusProcessing); err != nil {
		return fmt.Errorf("marking document processing: %w", err)
	}

	pieces := knowledge.SplitText(string(data), knowledge.DefaultChunkSize, knowledge.DefaultChunkOverlap)
	for i, p := range pieces {
		_, err := a.Knowledge.AddChunk(ctx, &store.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    p,
		})
		if err != nil {
			if serr := a.Store.UpdateDocumentStatus(ctx, doc.ID, store.DocumentStatusFailed); serr != nil {
				fmt.Fprintf(os.Stderr, "marking document failed: %v\n", serr)
			}
			return fmt.Errorf("embedding chunk %d: %w", i, err)
		}
	}

	if err := a.Store.UpdateDocumentStatus(ctx, doc.ID, store.DocumentStatusCompleted); err != nil {
		return fmt.Errorf("marking document completed: %w", err)
	}
	fmt.Printf("Ingested %s as document %s (%d chunks)\n", path, doc.ID, len(pieces))
	return nil
}
