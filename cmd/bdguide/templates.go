package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage evaluation templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates and mark the active one",
	Args:  cobra.NoArgs,
	RunE:  runTemplatesList,
}

var templatesExportCmd = &cobra.Command{
	Use:   "export <template-id>",
	Short: "Write a template document to the export directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesExport,
}

var templatesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a template document as a new editable template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesImport,
}

var templatesDiffCmd = &cobra.Command{
	Use:   "diff <from-id> <to-id>",
	Short: "Show a unified diff between two templates",
	Args:  cobra.ExactArgs(2),
	RunE:  runTemplatesDiff,
}

var templatesActivateCmd = &cobra.Command{
	Use:   "activate <template-id>",
	Short: "Make a template the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesActivate,
}

var templatesExportDir string

func init() {
	templatesExportCmd.Flags().StringVarP(&templatesExportDir, "out", "o", "", "Output directory (default: EXPORT_DIR)")

	templatesCmd.AddCommand(templatesListCmd, templatesExportCmd, templatesImportCmd, templatesDiffCmd, templatesActivateCmd)
	rootCmd.AddCommand(templatesCmd)
}

func runTemplatesList(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTIVE\tID\tNAME\tCATEGORIES\tMETRICS\tUPDATED")
	activeID := a.Templates.ActiveID()
	for _, t := range a.Templates.List() {
		mark := ""
		if t.ID == activeID {
			mark = "*"
		}
		metrics := 0
		for _, c := range t.Categories {
			metrics += len(c.Metrics)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", mark, t.ID, t.Name, len(t.Categories), metrics, humanize.Time(t.UpdatedAt))
	}
	return w.Flush()
}

func runTemplatesExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := templatesExportDir
	if dir == "" {
		dir = a.Config.Export.Dir
	}
	exporter, err := transfer.NewFileExporter(dir, transfer.WithGzip(a.Config.Export.Gzip))
	if err != nil {
		return err
	}
	if err := a.Templates.Export(ctx, args[0], exporter); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", args[0], dir)
	return nil
}

func runTemplatesImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	data, err := readImportFile(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tmpl, err := a.Templates.Import(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %q as %s\n", tmpl.Name, tmpl.ID)
	return nil
}

func runTemplatesDiff(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	from := a.Templates.Get(args[0])
	if from == nil {
		return fmt.Errorf("template not found: %s", args[0])
	}
	to := a.Templates.Get(args[1])
	if to == nil {
		return fmt.Errorf("template not found: %s", args[1])
	}

	diff, err := templates.Diff(from, to)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "templates are identical")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), diff)
	return nil
}

func runTemplatesActivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Templates.SetActive(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "active template: %s\n", args[0])
	return nil
}

// readImportFile reads a plain or gzipped JSON document
func readImportFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return transfer.ReadImport(f)
}
