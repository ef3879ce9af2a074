package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gohops/pkg/job"
	"github.com/3leaps/gohops/pkg/operation"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Define and run jobs",
}

var jobRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Start an execution and wait for it to finish",
	Long: `Start an execution of a job and wait until it finishes.

After the execution reaches a final state the command keeps polling for a
bounded time until the stdout and stderr logs are aggregated. The command
exits with code 10 when the execution failed.

Examples:
  gohops job run etl
  gohops job run etl --args "--day 2024-01-15" --download-logs
  gohops job run etl --no-wait`,
	Args: cobra.ExactArgs(1),
	RunE: runJobRun,
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job> <execution_id>",
	Short: "Show one execution",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobStatus,
}

var jobExecutionsCmd = &cobra.Command{
	Use:   "executions <job>",
	Short: "List the executions of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobExecutions,
}

var jobStopCmd = &cobra.Command{
	Use:   "stop <job> <execution_id>",
	Short: "Stop a running execution",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobStop,
}

var jobLogsCmd = &cobra.Command{
	Use:   "logs <job> <execution_id>",
	Short: "Download the logs of an execution",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobLogs,
}

var jobCreateCmd = &cobra.Command{
	Use:   "create <job>",
	Short: "Define a job from a configuration file",
	Long: `Define a job from a YAML or JSON configuration file.

Start from the default configuration of a job type:
  gohops job config pyspark > etl.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runJobCreate,
}

var jobDeleteCmd = &cobra.Command{
	Use:   "delete <job>",
	Short: "Delete a job and its executions",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobDelete,
}

var jobConfigCmd = &cobra.Command{
	Use:   "config <type>",
	Short: "Print the default configuration of a job type",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobConfig,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobRunCmd, jobStatusCmd, jobExecutionsCmd, jobStopCmd, jobLogsCmd,
		jobCreateCmd, jobDeleteCmd, jobConfigCmd)

	jobRunCmd.Flags().String("args", "", "Arguments passed to the execution")
	jobRunCmd.Flags().Bool("no-wait", false, "Return right after the execution is submitted")
	jobRunCmd.Flags().Bool("download-logs", false, "Download stdout and stderr after the execution finished")
	jobRunCmd.Flags().String("logs-dir", "", "Directory for downloaded logs (default: current directory)")

	jobStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobExecutionsCmd.Flags().Bool("json", false, "Output as JSON")
	jobLogsCmd.Flags().String("dir", "", "Directory for downloaded logs (default: current directory)")

	jobCreateCmd.Flags().StringP("file", "f", "", "Job configuration file")
	jobCreateCmd.Flags().Bool("update", false, "Replace the configuration when the job exists")
	_ = jobCreateCmd.MarkFlagRequired("file")
}

func (s *session) jobEngine() *job.Engine {
	return job.NewEngine(job.NewExecutions(s.client), s.store,
		job.WithLogger(s.log),
		job.WithInterval(s.cfg.Wait.PollInterval),
		job.WithLogAggregationBudget(s.cfg.Wait.LogAggregationBudget))
}

func runJobRun(cmd *cobra.Command, args []string) error {
	jobArgs, _ := cmd.Flags().GetString("args")
	noWait, _ := cmd.Flags().GetBool("no-wait")
	downloadLogs, _ := cmd.Flags().GetBool("download-logs")
	logsDir, _ := cmd.Flags().GetString("logs-dir")

	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	j, err := job.NewAPI(s.client).GetJob(ctx, args[0])
	if err != nil {
		return platformError("Failed to find job", err)
	}

	engine := s.jobEngine()
	rec := s.track(operation.KindExecution, j.Name, "run")

	exec, runErr := engine.Run(ctx, j, jobArgs, !noWait)
	if exec.ID != 0 {
		rec.RemoteID = strconv.Itoa(exec.ID)
		rec.State = exec.State
		rec.StdoutPath = exec.StdoutPath
		rec.StderrPath = exec.StderrPath
	}

	out := cmd.OutOrStdout()
	if noWait && runErr == nil {
		s.save(rec)
		_, _ = fmt.Fprintf(out, "Started execution %d of %s (op %s)\n", exec.ID, j.Name, shortID(rec.ID))
		return nil
	}

	outcome := job.Classify(j.Family(), exec)
	rec.Finish(outcome, exec.State, runErr)

	if downloadLogs && exec.ID != 0 {
		logs, err := engine.DownloadLogs(ctx, exec, logsDir)
		if logs.Dir != "" {
			rec.LocalLogDir = logs.Dir
		}
		if err != nil {
			s.log.Warn("Failed to download logs", zap.Int("execution_id", exec.ID), zap.Error(err))
		} else {
			_, _ = fmt.Fprintf(out, "Logs downloaded to %s\n", logs.Dir)
		}
	}
	s.save(rec)

	if runErr != nil {
		return platformError("Execution could not be awaited", runErr)
	}
	if outcome != operation.Succeeded {
		return exitError(ExitOperationFailed, "Execution failed",
			fmt.Errorf("job %s execution %d finished with status %s: %w",
				j.Name, exec.ID, job.AuthoritativeStatus(j.Family(), exec), operation.ErrFailed))
	}
	_, _ = fmt.Fprintf(out, "Execution %d of %s finished with status %s\n",
		exec.ID, j.Name, job.AuthoritativeStatus(j.Family(), exec))
	return nil
}

func parseExecutionID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, exitError(foundry.ExitInvalidArgument, "Invalid execution id", fmt.Errorf("%q is not a positive integer", raw))
	}
	return id, nil
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	id, err := parseExecutionID(args[1])
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	exec, err := job.NewExecutions(s.client).Get(ctx, args[0], id)
	if err != nil {
		return platformError("Failed to get execution", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, exec)
	}
	_, _ = fmt.Fprintf(out, "execution_id=%d\n", exec.ID)
	_, _ = fmt.Fprintf(out, "job=%s\n", exec.JobName)
	_, _ = fmt.Fprintf(out, "state=%s\n", exec.State)
	if exec.FinalStatus != "" {
		_, _ = fmt.Fprintf(out, "final_status=%s\n", exec.FinalStatus)
	}
	if exec.SubmissionTime != "" {
		_, _ = fmt.Fprintf(out, "submitted_at=%s\n", exec.SubmissionTime)
	}
	if exec.AppID != "" {
		_, _ = fmt.Fprintf(out, "app_id=%s\n", exec.AppID)
	}
	if exec.StdoutPath != "" {
		_, _ = fmt.Fprintf(out, "stdout_path=%s\n", exec.StdoutPath)
	}
	if exec.StderrPath != "" {
		_, _ = fmt.Fprintf(out, "stderr_path=%s\n", exec.StderrPath)
	}
	return nil
}

func runJobExecutions(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	execs, err := job.NewExecutions(s.client).List(ctx, args[0])
	if err != nil {
		return platformError("Failed to list executions", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, execs)
	}
	if len(execs) == 0 {
		_, _ = fmt.Fprintln(out, "No executions found")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "ID\tSTATE\tFINAL STATUS\tSUBMITTED")
	for _, x := range execs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", x.ID, x.State, orDash(x.FinalStatus), orDash(x.SubmissionTime))
	}
	return nil
}

func runJobStop(cmd *cobra.Command, args []string) error {
	id, err := parseExecutionID(args[1])
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	exec, err := job.NewExecutions(s.client).Stop(ctx, args[0], id)
	if err != nil {
		return platformError("Failed to stop execution", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Execution %d of %s is %s\n", id, args[0], orDash(exec.State))
	return nil
}

func runJobLogs(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	id, err := parseExecutionID(args[1])
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	engine := s.jobEngine()
	exec, err := engine.Executions().Get(ctx, args[0], id)
	if err != nil {
		return platformError("Failed to get execution", err)
	}
	logs, err := engine.DownloadLogs(ctx, exec, dir)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to download logs", err)
	}

	out := cmd.OutOrStdout()
	if logs.Stdout == "" && logs.Stderr == "" {
		_, _ = fmt.Fprintf(out, "No logs available yet for execution %d\n", id)
		return nil
	}
	if logs.Stdout != "" {
		_, _ = fmt.Fprintf(out, "stdout=%s\n", logs.Stdout)
	}
	if logs.Stderr != "" {
		_, _ = fmt.Fprintf(out, "stderr=%s\n", logs.Stderr)
	}
	return nil
}

func runJobCreate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	update, _ := cmd.Flags().GetBool("update")

	cfg, err := job.LoadConfigFile(path)
	if err != nil {
		return configFileError("Failed to read job configuration", err)
	}

	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	api := job.NewAPI(s.client)
	var j job.Job
	if update {
		j, err = api.UpdateJob(ctx, args[0], cfg)
	} else {
		j, err = api.CreateJob(ctx, args[0], cfg)
	}
	switch {
	case errors.Is(err, job.ErrJobExists):
		return exitError(foundry.ExitInvalidArgument, "Job already exists, use --update to replace it", err)
	case errors.Is(err, job.ErrInvalidConfig):
		return exitError(foundry.ExitInvalidArgument, "Invalid job configuration", err)
	case err != nil:
		return platformError("Failed to define job", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Job %s defined (id %d, type %s)\n", j.Name, j.ID, orDash(j.Family().String()))
	return nil
}

func runJobDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	if err := job.NewAPI(s.client).DeleteJob(ctx, args[0]); err != nil {
		return platformError("Failed to delete job", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted\n", args[0])
	return nil
}

func runJobConfig(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	cfg, err := job.NewAPI(s.client).GetConfiguration(ctx, args[0])
	if err != nil {
		return platformError("Failed to get default configuration", err)
	}
	return printJSON(cmd.OutOrStdout(), cfg)
}

// configFileError separates unreadable files from configurations the schema
// rejects.
func configFileError(message string, err error) error {
	if errors.Is(err, job.ErrInvalidConfig) {
		return exitError(foundry.ExitInvalidArgument, "Invalid job configuration", err)
	}
	return exitError(foundry.ExitFileReadError, message, err)
}
