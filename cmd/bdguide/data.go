package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/scoring"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
	"github.com/kalmansforge/web3-bd-guide-sub000/pkg/client"
)

var scoreCmd = &cobra.Command{
	Use:   "score <project-id>",
	Short: "Print the score and tier breakdown of a saved evaluation",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a full backup document",
	Long:  "Writes every saved evaluation, the threshold list and appearance settings as one JSON document.",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Import a backup or single-evaluation document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show record store usage",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all stored data and reinitialize defaults",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var (
	serverURL  string
	userID     string
	backupOut  string
	resetForce bool
)

func init() {
	for _, cmd := range []*cobra.Command{backupCmd, restoreCmd, usageCmd, resetCmd} {
		cmd.Flags().StringVar(&serverURL, "server", "", "Base URL of a running bdguide server (default: operate on the local store)")
		cmd.Flags().StringVar(&userID, "user", "", "User id sent to the server")
	}
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "Output file (default: EXPORT_DIR/web3-bd-backup-<date>.json)")
	resetCmd.Flags().BoolVar(&resetForce, "yes", false, "Confirm deletion of all data")

	rootCmd.AddCommand(scoreCmd, backupCmd, restoreCmd, usageCmd, resetCmd)
}

func remoteClient() *client.Client {
	return client.NewClient(serverURL, client.WithUserID(userID))
}

func runScore(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	p := a.Session.Get(args[0])
	if p == nil {
		return fmt.Errorf("project not found: %s", args[0])
	}

	result := scoring.Score(p)
	b := scoring.Count(p)
	tier := string(result.Tier)
	if tier == "" {
		tier = "unclassified"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", p.Name)
	fmt.Fprintf(out, "  score: %.1f\n", result.Score)
	fmt.Fprintf(out, "  tier:  %s\n", tier)
	fmt.Fprintf(out, "  T0: %d  T1: %d  unrated: %d  total: %d\n", b.T0, b.T1, b.Unrated, b.Total)
	return nil
}

func runBackup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if serverURL != "" {
		data, err := remoteClient().ExportData(ctx)
		if err != nil {
			return err
		}
		path := backupOut
		if path == "" {
			path = transfer.BulkFilename(time.Now().UTC())
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s (%s)\n", path, humanize.Bytes(uint64(len(data))))
		return nil
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dir, name := a.Config.Export.Dir, transfer.BulkFilename(time.Now().UTC())
	if backupOut != "" {
		dir, name = filepath.Dir(backupOut), filepath.Base(backupOut)
	}
	exporter, err := transfer.NewFileExporter(dir, transfer.WithGzip(a.Config.Export.Gzip))
	if err != nil {
		return err
	}
	doc := a.Transfer.ExportAll(ctx)
	if err := exporter.Export(ctx, name, doc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "backup of %d evaluations written to %s\n", len(doc.Evaluations), exporter.Path(name))
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	data, err := readImportFile(args[0])
	if err != nil {
		return err
	}

	var result *transfer.ImportResult
	if serverURL != "" {
		result, err = remoteClient().ImportData(ctx, data)
	} else {
		a, openErr := openApp(ctx)
		if openErr != nil {
			return openErr
		}
		defer a.Close()
		result, err = a.Transfer.ImportAll(ctx, data)
	}
	if result != nil {
		printJSON(cmd.OutOrStdout(), result)
	}
	return err
}

func runUsage(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var usage *store.Usage
	var err error
	if serverURL != "" {
		usage, err = remoteClient().Usage(ctx)
	} else {
		a, openErr := openApp(ctx)
		if openErr != nil {
			return openErr
		}
		defer a.Close()
		usage, err = a.Transfer.Usage(ctx)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range usage.Records {
		fmt.Fprintf(out, "%-32s %s\n", r.Key, r.Human)
	}
	fmt.Fprintf(out, "%-32s %s\n", "total", usage.Total)
	if usage.QuotaBytes > 0 {
		fmt.Fprintf(out, "%-32s %s (%.1f%% used)\n", "quota", humanize.Bytes(uint64(usage.QuotaBytes)), usage.Percent)
	}
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !resetForce {
		return fmt.Errorf("refusing to delete all data without --yes")
	}
	ctx := cmd.Context()

	if serverURL != "" {
		if err := remoteClient().ClearData(ctx); err != nil {
			return err
		}
	} else {
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Transfer.ClearAll(ctx); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "all data cleared")
	return nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
