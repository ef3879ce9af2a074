package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/gohops/pkg/flink"
	"github.com/3leaps/gohops/pkg/job"
	"github.com/3leaps/gohops/pkg/operation"
)

var flinkCmd = &cobra.Command{
	Use:   "flink",
	Short: "Manage Flink clusters",
	Long: `Manage Flink clusters.

A cluster is a job of the flink type; starting it launches an execution that
keeps running until the cluster is stopped. Commands that talk to the job
manager attach to the most recent RUNNING execution unless --execution is
given.`,
}

var flinkSetupCmd = &cobra.Command{
	Use:   "setup <cluster>",
	Short: "Define a cluster unless it exists",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlinkSetup,
}

var flinkStartCmd = &cobra.Command{
	Use:   "start <cluster>",
	Short: "Start a cluster and wait until it is running",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlinkStart,
}

var flinkStopCmd = &cobra.Command{
	Use:   "stop <cluster>",
	Short: "Stop a running cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlinkStop,
}

var flinkJobsCmd = &cobra.Command{
	Use:   "jobs <cluster>",
	Short: "List the jobs of a cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlinkJobs,
}

var flinkJobCmd = &cobra.Command{
	Use:   "job <cluster> <job_id>",
	Short: "Show one job of a cluster",
	Args:  cobra.ExactArgs(2),
	RunE:  runFlinkJob,
}

var flinkStopJobCmd = &cobra.Command{
	Use:   "stop-job <cluster> <job_id>",
	Short: "Cancel a job of a cluster",
	Args:  cobra.ExactArgs(2),
	RunE:  runFlinkStopJob,
}

var flinkJarsCmd = &cobra.Command{
	Use:   "jars <cluster>",
	Short: "List the jars uploaded to a cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlinkJars,
}

var flinkUploadJarCmd = &cobra.Command{
	Use:   "upload-jar <cluster> <jar_file>",
	Short: "Upload a local jar to a cluster",
	Args:  cobra.ExactArgs(2),
	RunE:  runFlinkUploadJar,
}

var flinkSubmitCmd = &cobra.Command{
	Use:   "submit <cluster> <jar_id>",
	Short: "Run an uploaded jar",
	Args:  cobra.ExactArgs(2),
	RunE:  runFlinkSubmit,
}

func init() {
	rootCmd.AddCommand(flinkCmd)
	flinkCmd.AddCommand(flinkSetupCmd, flinkStartCmd, flinkStopCmd, flinkJobsCmd, flinkJobCmd,
		flinkStopJobCmd, flinkJarsCmd, flinkUploadJarCmd, flinkSubmitCmd)

	flinkSetupCmd.Flags().StringP("file", "f", "", "Cluster configuration file (default: platform defaults)")
	flinkStartCmd.Flags().Int("await", -1, "Polls to wait while the cluster initializes (default: wait.cluster_start_budget)")

	for _, c := range []*cobra.Command{flinkStopCmd, flinkJobsCmd, flinkJobCmd, flinkStopJobCmd,
		flinkJarsCmd, flinkUploadJarCmd, flinkSubmitCmd} {
		c.Flags().Int("execution", 0, "Execution id running the cluster (default: latest running)")
	}
	flinkJobsCmd.Flags().Bool("json", false, "Output as JSON")
	flinkJobCmd.Flags().Bool("json", false, "Output as JSON")
	flinkJarsCmd.Flags().Bool("json", false, "Output as JSON")

	flinkSubmitCmd.Flags().String("main-class", "", "Entry class of the job")
	flinkSubmitCmd.Flags().String("args", "", "Program arguments")
	_ = flinkSubmitCmd.MarkFlagRequired("main-class")
}

func (s *session) flinkAPI() *flink.API {
	return flink.NewAPI(s.client,
		flink.WithLogger(s.log),
		flink.WithInterval(s.cfg.Wait.PollInterval))
}

// withCluster opens a session and attaches to the execution running the
// cluster.
func withCluster(cmd *cobra.Command, name string, fn func(ctx context.Context, c *flink.Cluster) error) error {
	execID, _ := cmd.Flags().GetInt("execution")
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	cluster, err := s.flinkAPI().GetCluster(ctx, name)
	if err != nil {
		return platformError("Failed to find cluster", err)
	}
	if _, err := cluster.Attach(ctx, execID); err != nil {
		if errors.Is(err, flink.ErrNotStarted) {
			return exitError(ExitNotFound, "Cluster is not running", err)
		}
		return platformError("Failed to attach to cluster", err)
	}
	return fn(ctx, cluster)
}

func runFlinkSetup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	var cfg map[string]any
	if path != "" {
		var err error
		if cfg, err = job.LoadConfigFile(path); err != nil {
			return configFileError("Failed to read cluster configuration", err)
		}
	}

	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	cluster, err := s.flinkAPI().SetupCluster(ctx, args[0], cfg)
	if err != nil {
		return platformError("Failed to set up cluster", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s ready (job id %d)\n", cluster.Job().Name, cluster.Job().ID)
	return nil
}

func runFlinkStart(cmd *cobra.Command, args []string) error {
	budget, _ := cmd.Flags().GetInt("await")
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	if budget < 0 {
		budget = s.cfg.Wait.ClusterStartBudget
	}

	cluster, err := s.flinkAPI().GetCluster(ctx, args[0])
	if err != nil {
		return platformError("Failed to find cluster", err)
	}

	rec := s.track(operation.KindFlink, args[0], "start")
	exec, startErr := cluster.Start(ctx, budget)
	if exec.ID != 0 {
		rec.RemoteID = strconv.Itoa(exec.ID)
	}
	outcome := operation.Succeeded
	if startErr != nil {
		outcome = operation.Failed
	}
	rec.Finish(outcome, exec.State, startErr)
	s.save(rec)

	var startup *flink.StartupError
	if errors.As(startErr, &startup) {
		return exitError(ExitOperationFailed, "Cluster did not start", startErr)
	}
	if startErr != nil {
		return platformError("Failed to start cluster", startErr)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s running as execution %d (%s)\n", args[0], exec.ID, orDash(exec.AppID))
	return nil
}

func runFlinkStop(cmd *cobra.Command, args []string) error {
	return withCluster(cmd, args[0], func(ctx context.Context, c *flink.Cluster) error {
		if err := c.Stop(ctx); err != nil {
			return platformError("Failed to stop cluster", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s stopped\n", args[0])
		return nil
	})
}

func runFlinkJobs(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return withCluster(cmd, args[0], func(ctx context.Context, c *flink.Cluster) error {
		jobs, err := c.GetJobs(ctx)
		if err != nil {
			return platformError("Failed to list cluster jobs", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, jobs)
		}
		if len(jobs) == 0 {
			_, _ = fmt.Fprintln(out, "No jobs found")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		defer func() { _ = w.Flush() }()
		_, _ = fmt.Fprintln(w, "JOB ID\tSTATUS")
		for _, j := range jobs {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", j.ID, j.Status)
		}
		return nil
	})
}

func runFlinkJob(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return withCluster(cmd, args[0], func(ctx context.Context, c *flink.Cluster) error {
		d, err := c.GetJob(ctx, args[1])
		if err != nil {
			return platformError("Failed to get cluster job", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, d)
		}
		_, _ = fmt.Fprintf(out, "job_id=%s\n", d.ID)
		_, _ = fmt.Fprintf(out, "name=%s\n", d.Name)
		_, _ = fmt.Fprintf(out, "state=%s\n", d.State)
		if d.StartTime > 0 {
			_, _ = fmt.Fprintf(out, "started_at=%s\n", time.UnixMilli(d.StartTime).UTC().Format(time.RFC3339))
		}
		if d.EndTime > 0 {
			_, _ = fmt.Fprintf(out, "ended_at=%s\n", time.UnixMilli(d.EndTime).UTC().Format(time.RFC3339))
		}
		return nil
	})
}

func runFlinkStopJob(cmd *cobra.Command, args []string) error {
	return withCluster(cmd, args[0], func(ctx context.Context, c *flink.Cluster) error {
		if err := c.StopJob(ctx, args[1]); err != nil {
			return platformError("Failed to stop cluster job", err)
		}
		state, err := c.JobState(ctx, args[1])
		if err != nil {
			return platformError("Failed to get cluster job state", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", args[1], state)
		return nil
	})
}

func runFlinkJars(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return withCluster(cmd, args[0], func(ctx context.Context, c *flink.Cluster) error {
		jars, err := c.GetJars(ctx)
		if err != nil {
			return platformError("Failed to list jars", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, jars)
		}
		if len(jars) == 0 {
			_, _ = fmt.Fprintln(out, "No jars uploaded")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		defer func() { _ = w.Flush() }()
		_, _ = fmt.Fprintln(w, "JAR ID\tNAME\tUPLOADED")
		for _, j := range jars {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", j.ID, j.Name, time.UnixMilli(j.Uploaded).UTC().Format(time.RFC3339))
		}
		return nil
	})
}

func runFlinkUploadJar(cmd *cobra.Command, args []string) error {
	return withCluster(cmd, args[0], func(ctx context.Context, c *flink.Cluster) error {
		if err := c.UploadJar(ctx, args[1]); err != nil {
			return platformError("Failed to upload jar", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", args[1], args[0])
		return nil
	})
}

func runFlinkSubmit(cmd *cobra.Command, args []string) error {
	mainClass, _ := cmd.Flags().GetString("main-class")
	programArgs, _ := cmd.Flags().GetString("args")
	return withCluster(cmd, args[0], func(ctx context.Context, c *flink.Cluster) error {
		jobID, err := c.SubmitJob(ctx, args[1], mainClass, programArgs)
		if err != nil {
			return platformError("Failed to submit job", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", jobID)
		return nil
	})
}
