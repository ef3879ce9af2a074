package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gohops/pkg/project"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect and create projects",
}

var projectInfoCmd = &cobra.Command{
	Use:   "info [name]",
	Short: "Show a project (default: the configured project)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProjectInfo,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectCreate,
}

var projectVariableCmd = &cobra.Command{
	Use:   "variable <name>",
	Short: "Print a platform variable",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectVariable,
}

var projectVersionCmd = &cobra.Command{
	Use:   "version <software>",
	Short: "Print the version of a platform component",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectVersion,
}

var projectInstallCmd = &cobra.Command{
	Use:   "install <library>",
	Short: "Install a Python library into the project environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectInstall,
}

var projectSearchTokenCmd = &cobra.Command{
	Use:   "search-token",
	Short: "Print a token for the project search service",
	Args:  cobra.NoArgs,
	RunE:  runProjectSearchToken,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectInfoCmd, projectCreateCmd, projectVariableCmd, projectVersionCmd,
		projectInstallCmd, projectSearchTokenCmd)

	projectInfoCmd.Flags().Bool("json", false, "Output as JSON")
	projectCreateCmd.Flags().String("description", "", "Project description")

	projectInstallCmd.Flags().String("python", "3.10", "Python version of the environment")
	projectInstallCmd.Flags().String("version", "", "Library version")
	projectInstallCmd.Flags().String("channel", "defaults", "Conda channel")
	projectInstallCmd.Flags().String("source", "PIP", "Package source: PIP or CONDA")

	projectSearchTokenCmd.Flags().String("index", "", "Also print the project-scoped name of this index")
}

func runProjectInfo(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := commandContext(cmd)
	s, err := newPlatformSession()
	if err != nil {
		return err
	}
	name := s.cfg.Platform.Project
	if len(args) == 1 {
		name = args[0]
	}
	if name == "" {
		return exitError(foundry.ExitInvalidArgument, "Project name is required", nil)
	}

	p, err := project.NewAPI(s.client).GetProject(ctx, name)
	if err != nil {
		return platformError("Failed to get project", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, p)
	}
	_, _ = fmt.Fprintf(out, "project_id=%d\n", p.ID)
	_, _ = fmt.Fprintf(out, "name=%s\n", p.Name)
	if p.Owner != "" {
		_, _ = fmt.Fprintf(out, "owner=%s\n", p.Owner)
	}
	if p.Created != "" {
		_, _ = fmt.Fprintf(out, "created=%s\n", p.Created)
	}
	if p.Description != "" {
		_, _ = fmt.Fprintf(out, "description=%s\n", p.Description)
	}
	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	description, _ := cmd.Flags().GetString("description")
	ctx := commandContext(cmd)
	s, err := newPlatformSession()
	if err != nil {
		return err
	}

	api := project.NewAPI(s.client)
	exists, err := api.Exists(ctx, args[0])
	if err != nil {
		return platformError("Failed to check project", err)
	}
	if exists {
		return exitError(foundry.ExitInvalidArgument, "Project already exists", fmt.Errorf("project %q", args[0]))
	}
	p, err := api.CreateProject(ctx, args[0], description)
	if err != nil {
		return platformError("Failed to create project", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (id %d)\n", p.Name, p.ID)
	return nil
}

func runProjectVariable(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newPlatformSession()
	if err != nil {
		return err
	}
	v, err := project.NewVariables(s.client).GetVariable(ctx, args[0])
	if err != nil {
		return platformError("Failed to get variable", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runProjectVersion(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newPlatformSession()
	if err != nil {
		return err
	}
	v, err := project.NewVariables(s.client).GetVersion(ctx, args[0])
	if err != nil {
		return platformError("Failed to get version", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runProjectInstall(cmd *cobra.Command, args []string) error {
	python, _ := cmd.Flags().GetString("python")
	version, _ := cmd.Flags().GetString("version")
	channel, _ := cmd.Flags().GetString("channel")
	source, _ := cmd.Flags().GetString("source")

	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	spec := map[string]any{
		"channelUrl":    channel,
		"packageSource": source,
	}
	if version != "" {
		spec["version"] = version
	}
	lib, err := project.NewLibraries(s.client).Install(ctx, python, args[0], spec)
	if err != nil {
		return platformError("Failed to install library", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Installing %s %s into Python %s\n", orDash(lib.Name), orDash(lib.Version), python)
	return nil
}

func runProjectSearchToken(cmd *cobra.Command, _ []string) error {
	index, _ := cmd.Flags().GetString("index")
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	search := project.NewOpenSearch(s.client)
	token, err := search.AuthorizationToken(ctx)
	if err != nil {
		return platformError("Failed to get search token", err)
	}
	out := cmd.OutOrStdout()
	if index != "" {
		_, _ = fmt.Fprintf(out, "index=%s\n", search.ProjectIndex(index))
	}
	_, _ = fmt.Fprintf(out, "token=%s\n", token)
	return nil
}
