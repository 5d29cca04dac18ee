package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
)

var templatesEditCmd = &cobra.Command{
	Use:   "edit <template-id>",
	Short: "Edit a stored template",
	Long: `Stages every requested change on a draft copy of the template and saves it
in one step. Nothing is written when any change fails or the template is locked.

Changes apply in this order: info, metric removals, category removals,
category additions, metric additions, category moves.`,
	Example: `  bdguide templates edit my-template --name "DeFi v2" \
    --add-category risk=Risk --add-metric risk/audits=Audits --move-category risk=0`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplatesEdit,
}

var templateEdits struct {
	name           string
	description    string
	author         string
	addCategory    []string
	removeCategory []string
	moveCategory   []string
	addMetric      []string
	removeMetric   []string
}

func init() {
	f := templatesEditCmd.Flags()
	f.StringVar(&templateEdits.name, "name", "", "New template name")
	f.StringVar(&templateEdits.description, "description", "", "New description")
	f.StringVar(&templateEdits.author, "author", "", "New author")
	f.StringSliceVar(&templateEdits.addCategory, "add-category", nil, "Append a category as id=Name")
	f.StringSliceVar(&templateEdits.removeCategory, "remove-category", nil, "Remove a category and its metrics")
	f.StringSliceVar(&templateEdits.moveCategory, "move-category", nil, "Move a category as id=index")
	f.StringSliceVar(&templateEdits.addMetric, "add-metric", nil, "Append a metric as category/id=Name")
	f.StringSliceVar(&templateEdits.removeMetric, "remove-metric", nil, "Remove a metric given as category/id")

	templatesCmd.AddCommand(templatesEditCmd)
}

func runTemplatesEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	draft, err := a.Templates.Checkout(args[0])
	if err != nil {
		return err
	}

	if err := stageEdits(cmd, draft); err != nil {
		_ = draft.Discard()
		return err
	}

	saved, err := commitDraft(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %q (%d categories, %d metrics)\n", saved.Name, len(saved.Categories), saved.MetricCount())
	return nil
}

func stageEdits(cmd *cobra.Command, draft *templates.Draft) error {
	flags := cmd.Flags()
	if flags.Changed("name") || flags.Changed("description") || flags.Changed("author") {
		cur := draft.Template()
		name, description, author := cur.Name, cur.Description, cur.Author
		if flags.Changed("name") {
			name = templateEdits.name
		}
		if flags.Changed("description") {
			description = templateEdits.description
		}
		if flags.Changed("author") {
			author = templateEdits.author
		}
		if err := draft.SetInfo(name, description, author); err != nil {
			return err
		}
	}

	for _, ref := range templateEdits.removeMetric {
		categoryID, metricID, ok := strings.Cut(ref, "/")
		if !ok {
			return fmt.Errorf("invalid --remove-metric %q: want category/id", ref)
		}
		if err := draft.RemoveMetric(categoryID, metricID); err != nil {
			return err
		}
	}

	for _, id := range templateEdits.removeCategory {
		if err := draft.RemoveCategory(id); err != nil {
			return err
		}
	}

	for _, spec := range templateEdits.addCategory {
		id, name, ok := strings.Cut(spec, "=")
		if !ok || id == "" {
			return fmt.Errorf("invalid --add-category %q: want id=Name", spec)
		}
		if err := draft.AddCategory(models.MetricCategory{ID: id, Name: name, Metrics: []models.Metric{}}); err != nil {
			return err
		}
	}

	for _, spec := range templateEdits.addMetric {
		ref, name, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid --add-metric %q: want category/id=Name", spec)
		}
		categoryID, metricID, ok := strings.Cut(ref, "/")
		if !ok || metricID == "" {
			return fmt.Errorf("invalid --add-metric %q: want category/id=Name", spec)
		}
		if err := draft.AddMetric(categoryID, models.Metric{ID: metricID, Name: name}); err != nil {
			return err
		}
	}

	for _, spec := range templateEdits.moveCategory {
		id, pos, ok := strings.Cut(spec, "=")
		index, err := strconv.Atoi(pos)
		if !ok || err != nil {
			return fmt.Errorf("invalid --move-category %q: want id=index", spec)
		}
		if err := draft.MoveCategory(id, index); err != nil {
			return err
		}
	}
	return nil
}

// commitDraft saves the draft, discarding it when the save is refused
func commitDraft(ctx context.Context, draft *templates.Draft) (*models.EvaluationTemplate, error) {
	saved, err := draft.Commit(ctx)
	if saved == nil {
		_ = draft.Discard()
		return nil, err
	}
	return saved, err
}
