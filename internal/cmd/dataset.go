package cmd

import (
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gohops/pkg/dataset"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Work with the project dataset filesystem",
	Long: `Work with the project dataset filesystem.

Relative paths are resolved under /Projects/<project>/. exists, download and
remove use the configured dataset backend (rest or s3); info and mkdir
always go through the platform.`,
}

var datasetExistsCmd = &cobra.Command{
	Use:   "exists <path>",
	Short: "Check whether a path exists",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetExists,
}

var datasetInfoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show the metadata of a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetInfo,
}

var datasetDownloadCmd = &cobra.Command{
	Use:   "download <path>",
	Short: "Copy a file to local disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetDownload,
}

var datasetRemoveCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "Delete a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetRemove,
}

var datasetMkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetMkdir,
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetExistsCmd, datasetInfoCmd, datasetDownloadCmd, datasetRemoveCmd, datasetMkdirCmd)

	datasetInfoCmd.Flags().Bool("json", false, "Output as JSON")
	datasetDownloadCmd.Flags().String("dir", "", "Local directory (default: current directory)")
	datasetDownloadCmd.Flags().Bool("overwrite", false, "Replace an existing local file")
}

func runDatasetExists(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	p := s.absPath(args[0])
	ok, err := s.store.Exists(ctx, p)
	if err != nil {
		return datasetError("Failed to check path", err)
	}
	if !ok {
		return exitError(ExitNotFound, "Path does not exist", fmt.Errorf("%s: %w", p, dataset.ErrNotFound))
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s exists\n", p)
	return nil
}

func runDatasetInfo(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	e, err := dataset.NewAPI(s.client, dataset.WithLogger(s.log)).Get(ctx, s.absPath(args[0]))
	if err != nil {
		return datasetError("Failed to get path", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, e)
	}
	_, _ = fmt.Fprintf(out, "path=%s\n", e.Path)
	_, _ = fmt.Fprintf(out, "dir=%t\n", e.Dir)
	if !e.Dir {
		_, _ = fmt.Fprintf(out, "size=%d\n", e.Size)
	}
	if e.Owner != "" {
		_, _ = fmt.Fprintf(out, "owner=%s\n", e.Owner)
	}
	if !e.ModifiedAt.IsZero() {
		_, _ = fmt.Fprintf(out, "modified_at=%s\n", e.ModifiedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runDatasetDownload(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	local, err := s.store.Download(ctx, s.absPath(args[0]), dir, overwrite)
	if err != nil {
		return datasetError("Download failed", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), local)
	return nil
}

func runDatasetRemove(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	p := s.absPath(args[0])
	if err := s.store.Remove(ctx, p); err != nil {
		return datasetError("Remove failed", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", p)
	return nil
}

func runDatasetMkdir(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	p := s.absPath(args[0])
	if err := dataset.NewAPI(s.client, dataset.WithLogger(s.log)).Mkdir(ctx, p); err != nil {
		return datasetError("Mkdir failed", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", p)
	return nil
}

func datasetError(message string, err error) error {
	switch {
	case dataset.IsExists(err):
		return exitError(foundry.ExitFileWriteError, message, fmt.Errorf("%w (use --overwrite)", err))
	case dataset.IsAccessDenied(err):
		return exitError(ExitFailure, message, err)
	}
	return platformError(message, err)
}
