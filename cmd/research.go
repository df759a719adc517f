package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	researchDocumentID string
	researchQuery      string
)

var researchCmd = &cobra.Command{
	Use:   "research [topic]",
	Short: "Run iterative research on a topic within a document",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResearch,
}

var researchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past research tasks",
	Args:  cobra.NoArgs,
	RunE:  runResearchList,
}

var researchShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show the findings of a research task",
	Args:  cobra.ExactArgs(1),
	RunE:  runResearchShow,
}

var researchListDocumentID string

func init() {
	researchCmd.Flags().StringVarP(&researchDocumentID, "document", "d", "", "document ID to research (required)")
	researchCmd.Flags().StringVarP(&researchQuery, "query", "q", "", "override the generated first search query")
	_ = researchCmd.MarkFlagRequired("document")
	researchListCmd.Flags().StringVarP(&researchListDocumentID, "document", "d", "", "only list tasks for this document")
	researchCmd.AddCommand(researchListCmd)
	researchCmd.AddCommand(researchShowCmd)
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	documentID, err := uuid.Parse(researchDocumentID)
	if err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}
	topic := strings.Join(args, " ")

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Researching %q in document %s...\n\n", topic, documentID)

	result, err := a.Research.ConductResearch(ctx, documentID, topic, researchQuery)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	fmt.Println(result.Summary)
	fmt.Printf("\nTask: %s (%s)\n", result.TaskID, result.Status)
	if len(result.Errors) > 0 {
		fmt.Fprintln(os.Stderr, "\nErrors during research:")
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
	}
	return nil
}

func runResearchList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	documentID := uuid.Nil
	if researchListDocumentID != "" {
		var err error
		documentID, err = uuid.Parse(researchListDocumentID)
		if err != nil {
			return fmt.Errorf("invalid document ID: %w", err)
		}
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.Store.ListResearchTasks(ctx, documentID, 50, 0)
	if err != nil {
		return fmt.Errorf("listing research tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No research tasks yet.")
		return nil
	}

	for _, t := range tasks {
		fmt.Printf("%s  %-12s  %s  %s\n",
			t.ID, t.Status, t.CreatedAt.Format("2006-01-02 15:04"), t.Topic)
	}
	return nil
}

func runResearchShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	taskID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid task ID: %w", err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.Store.GetResearchTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("loading research task: %w", err)
	}

	fmt.Printf("Topic:   %s\n", task.Topic)
	fmt.Printf("Status:  %s\n", task.Status)
	fmt.Printf("Created: %s\n", task.CreatedAt.Format("2006-01-02 15:04"))
	if !task.CompletedAt.IsZero() {
		fmt.Printf("Done:    %s\n", task.CompletedAt.Format("2006-01-02 15:04"))
	}
	if task.DocumentID != uuid.Nil {
		fmt.Printf("Scope:   document %s\n", task.DocumentID)
	}
	if task.Findings != "" {
		fmt.Printf("\n%s\n", task.Findings)
	}
	if len(task.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range task.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	if task.ErrorLog != "" {
		fmt.Fprintf(os.Stderr, "\nErrors:\n%s\n", task.ErrorLog)
	}
	return nil
}
