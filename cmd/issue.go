package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/output"
)

var (
	issueTitle      string
	issueText       string
	issueCreatedBy  string
	issueAssignedTo string
	issueStatusText string
	issueFilters    []string
	issueSets       []string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage project issues",
	Long:  "Create, list, update and delete issues directly against the configured store.",
}

var issueAddCmd = &cobra.Command{
	Use:   "add <project>",
	Short: "Add a new issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context(), args[0])
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list <project>",
	Aliases: []string{"ls"},
	Short:   "List issues of a project",
	Long:    "List issues of a project. Each --filter key=value must match exactly.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context(), args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update fields of an issue",
	Long:  "Update fields of an issue. Each --set key=value replaces one field, e.g. --set open=false.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd.Context(), args[0])
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <issue-id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issueSets = []string{models.FieldOpen + "=false"}
		return issueUpdateRun(cmd.Context(), args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(cmd.Context(), args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueText, "text", "", "Issue text (required)")
	issueAddCmd.Flags().StringVar(&issueCreatedBy, "created-by", "", "Reporter (required)")
	issueAddCmd.Flags().StringVar(&issueAssignedTo, "assigned-to", "", "Assignee")
	issueAddCmd.Flags().StringVar(&issueStatusText, "status-text", "", "Free-form status")

	issueListCmd.Flags().StringArrayVarP(&issueFilters, "filter", "f", nil, "Exact-match filter key=value (repeatable)")

	issueUpdateCmd.Flags().StringArrayVarP(&issueSets, "set", "s", nil, "Field to update key=value (repeatable)")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

// parsePairs splits key=value arguments.
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

func issueAddRun(ctx context.Context, project string) error {
	in := issues.CreateInput{
		IssueTitle: issueTitle,
		IssueText:  issueText,
		CreatedBy:  issueCreatedBy,
		AssignedTo: issueAssignedTo,
		StatusText: issueStatusText,
	}

	if dryRun {
		ui.DryRunMsg("Would add issue: %s to %s", issueTitle, project)
		return nil
	}

	svc, _, err := getService(ctx)
	if err != nil {
		return err
	}

	issue, err := svc.Create(ctx, project, in)
	if err != nil {
		return err
	}

	ui.Success("Created issue %s: %s", output.Cyan(issue.ID), issue.IssueTitle)
	return nil
}

func issueListRun(ctx context.Context, project string) error {
	params, err := parsePairs(issueFilters)
	if err != nil {
		return err
	}

	svc, _, err := getService(ctx)
	if err != nil {
		return err
	}

	found, err := svc.Query(ctx, project, params)
	if err != nil {
		return err
	}

	if len(found) == 0 {
		ui.Info("No issues found in %s", project)
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Created By", "Assigned To", "Status", "State", "Updated"})
	for _, issue := range found {
		_ = table.Append([]string{
			issue.ID,
			issue.IssueTitle,
			issue.CreatedBy,
			issue.AssignedTo,
			issue.StatusText,
			output.OpenState(issue.Open),
			output.TimeAgo(issue.UpdatedOn),
		})
	}
	return table.Render()
}

func issueUpdateRun(ctx context.Context, id string) error {
	pairs, err := parsePairs(issueSets)
	if err != nil {
		return err
	}

	fields := issues.Fields{models.FieldID: id}
	for key, value := range pairs {
		fields[key] = value
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s: %s", id, strings.Join(issueSets, ", "))
		return nil
	}

	svc, _, err := getService(ctx)
	if err != nil {
		return err
	}

	if _, err := svc.Update(ctx, fields); err != nil {
		return fmt.Errorf("%w: %s", err, id)
	}
	ui.Success("Updated issue %s", output.Cyan(id))
	return nil
}

func issueDeleteRun(ctx context.Context, id string) error {
	if dryRun {
		ui.DryRunMsg("Would delete issue %s", id)
		return nil
	}

	svc, _, err := getService(ctx)
	if err != nil {
		return err
	}

	if err := svc.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %s", err, id)
	}
	ui.Success("Deleted issue %s", output.Cyan(id))
	return nil
}
