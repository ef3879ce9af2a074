package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gohops/internal/config"
	"github.com/3leaps/gohops/pkg/opledger"
	"github.com/3leaps/gohops/pkg/operation"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Inspect the local operation ledger",
	Long: `Inspect the local record of awaited operations.

Every job run, Flink cluster start and git command the CLI awaits leaves a
record with its remote id, final state and outcome. Records are stored under
ledger.dir (default: ops/ under the gohops data directory) and never leave
this machine.

Operation ids can be abbreviated to any unique prefix.`,
}

var opsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded operations, newest first",
	Args:  cobra.NoArgs,
	RunE:  runOpsList,
}

var opsStatusCmd = &cobra.Command{
	Use:   "status <op_id>",
	Short: "Show one recorded operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpsStatus,
}

var opsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete old finished records",
	Args:  cobra.NoArgs,
	RunE:  runOpsGC,
}

func init() {
	rootCmd.AddCommand(opsCmd)
	opsCmd.AddCommand(opsListCmd, opsStatusCmd, opsGCCmd)

	opsListCmd.Flags().Bool("json", false, "Output as JSON")
	opsListCmd.Flags().String("kind", "", "Only show operations of this kind: git, execution or flink")
	opsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	opsGCCmd.Flags().String("max-age", "168h", "Delete finished records older than this duration")
	opsGCCmd.Flags().Bool("dry-run", false, "Show how many records would be deleted")
	opsGCCmd.Flags().Bool("json", false, "Output as JSON")
}

func ledgerStore() (*opledger.Store, error) {
	cfg := config.GetConfig()
	if cfg == nil || strings.TrimSpace(cfg.Ledger.Dir) == "" {
		return nil, exitError(ExitConfigError, "Ledger directory is not configured", nil)
	}
	return opledger.NewStore(cfg.Ledger.Dir), nil
}

func runOpsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	kind, _ := cmd.Flags().GetString("kind")
	kind = strings.ToLower(strings.TrimSpace(kind))

	store, err := ledgerStore()
	if err != nil {
		return err
	}
	records, err := store.List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read ledger", err)
	}
	if kind != "" {
		filtered := records[:0]
		for _, r := range records {
			if string(r.Kind) == kind {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if records == nil {
			records = []opledger.Record{}
		}
		return printJSON(out, records)
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No operations found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "OP ID\tKIND\tNAME\tACTION\tREMOTE ID\tSTATUS\tSTATE\tCREATED\tENDED")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Kind,
			orDash(r.Name),
			orDash(r.Action),
			orDash(r.RemoteID),
			r.Status,
			orDash(r.State),
			r.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(r.EndedAt),
		)
	}
	return nil
}

func runOpsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := ledgerStore()
	if err != nil {
		return err
	}
	id, err := store.Resolve(args[0])
	if err != nil {
		if operation.IsNotFound(err) {
			return exitError(ExitNotFound, "Operation not found", err)
		}
		if operation.IsAmbiguous(err) {
			return exitError(foundry.ExitInvalidArgument, "Operation id is ambiguous, use more characters", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to read ledger", err)
	}
	rec, err := store.Get(id)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read ledger", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, rec)
	}

	_, _ = fmt.Fprintf(out, "op_id=%s\n", rec.ID)
	_, _ = fmt.Fprintf(out, "kind=%s\n", rec.Kind)
	if rec.Name != "" {
		_, _ = fmt.Fprintf(out, "name=%s\n", rec.Name)
	}
	if rec.Action != "" {
		_, _ = fmt.Fprintf(out, "action=%s\n", rec.Action)
	}
	if rec.RemoteID != "" {
		_, _ = fmt.Fprintf(out, "remote_id=%s\n", rec.RemoteID)
	}
	_, _ = fmt.Fprintf(out, "status=%s\n", rec.Status)
	if rec.State != "" {
		_, _ = fmt.Fprintf(out, "state=%s\n", rec.State)
	}
	_, _ = fmt.Fprintf(out, "created_at=%s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(out, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	if rec.StdoutPath != "" {
		_, _ = fmt.Fprintf(out, "stdout_path=%s\n", rec.StdoutPath)
	}
	if rec.StderrPath != "" {
		_, _ = fmt.Fprintf(out, "stderr_path=%s\n", rec.StderrPath)
	}
	if rec.LocalLogDir != "" {
		_, _ = fmt.Fprintf(out, "local_log_dir=%s\n", rec.LocalLogDir)
	}
	if rec.Error != "" {
		_, _ = fmt.Fprintf(out, "error=%s\n", rec.Error)
	}
	return nil
}

type opsGCResult struct {
	opledger.GCResult
	MaxAge string `json:"max_age"`
}

func runOpsGC(cmd *cobra.Command, _ []string) error {
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	maxAgeStr = strings.TrimSpace(maxAgeStr)
	if maxAgeStr == "" {
		maxAgeStr = "168h"
	}
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --max-age", err)
	}
	if maxAge <= 0 {
		return exitError(foundry.ExitInvalidArgument, "--max-age must be > 0", nil)
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := ledgerStore()
	if err != nil {
		return err
	}
	res, err := store.GC(maxAge, time.Now().UTC(), dryRun)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Garbage collection failed", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, opsGCResult{GCResult: res, MaxAge: maxAgeStr})
	}
	if dryRun {
		_, _ = fmt.Fprintf(out, "would_delete=%d\n", res.WouldDelete)
		return nil
	}
	_, _ = fmt.Fprintf(out, "deleted=%d\n", res.Deleted)
	return nil
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
