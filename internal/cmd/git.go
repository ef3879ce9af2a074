package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gohops/pkg/git"
)

var gitCmd = &cobra.Command{
	Use:   "git",
	Short: "Work with the git repositories of a project",
	Long: `Work with the git repositories of a project.

Repository commands run on the platform as git executions. Each command is
submitted and awaited until the platform reports success or failure, and the
outcome is recorded in the operation ledger.

Repositories are addressed by name. When several repositories share a name,
pass --repo-path to pick one.`,
}

var gitReposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List repositories",
	Args:  cobra.NoArgs,
	RunE:  runGitRepos,
}

var gitRepoCmd = &cobra.Command{
	Use:   "repo <name>",
	Short: "Show one repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runGitRepo,
}

var gitCloneCmd = &cobra.Command{
	Use:   "clone <url> <path>",
	Short: "Clone a remote repository into a dataset path",
	Args:  cobra.ExactArgs(2),
	RunE:  runGitClone,
}

var gitStatusCmd = &cobra.Command{
	Use:   "status <repo>",
	Short: "Show the working tree status",
	Args:  cobra.ExactArgs(1),
	RunE:  runGitStatus,
}

var gitCommitCmd = &cobra.Command{
	Use:   "commit <repo>",
	Short: "Record changes",
	Long: `Record changes in the repository.

--files takes doublestar patterns ("**/*.py", "notebooks/*") which are
matched against the changed files reported by status.`,
	Args: cobra.ExactArgs(1),
	RunE: runGitCommit,
}

var gitPushCmd = &cobra.Command{
	Use:   "push <repo> <branch>",
	Short: "Push a branch to a remote",
	Args:  cobra.ExactArgs(2),
	RunE:  runGitRemote(git.ActionPush),
}

var gitPullCmd = &cobra.Command{
	Use:   "pull <repo> <branch>",
	Short: "Pull a branch from a remote",
	Args:  cobra.ExactArgs(2),
	RunE:  runGitRemote(git.ActionPull),
}

var gitCheckoutCmd = &cobra.Command{
	Use:   "checkout <repo> [branch]",
	Short: "Check out a branch or commit",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runGitCheckout,
}

var gitBranchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Create or delete branches",
}

var gitBranchCreateCmd = &cobra.Command{
	Use:   "create <repo> <branch>",
	Short: "Create a branch",
	Args:  cobra.ExactArgs(2),
	RunE:  runGitBranchCreate,
}

var gitBranchDeleteCmd = &cobra.Command{
	Use:   "delete <repo> <branch>",
	Short: "Delete a branch",
	Args:  cobra.ExactArgs(2),
	RunE:  runGitBranchDelete,
}

var gitCheckoutFilesCmd = &cobra.Command{
	Use:   "checkout-files <repo> <file>...",
	Short: "Discard working tree changes of files",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runGitCheckoutFiles,
}

var gitCommitsCmd = &cobra.Command{
	Use:   "commits <repo> <branch>",
	Short: "Show the history of a branch",
	Args:  cobra.ExactArgs(2),
	RunE:  runGitCommits,
}

var gitProviderCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage git provider credentials",
}

var gitProviderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers",
	Args:  cobra.NoArgs,
	RunE:  runGitProviderList,
}

var gitProviderGetCmd = &cobra.Command{
	Use:   "get <provider>",
	Short: "Show one provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runGitProviderGet,
}

var gitProviderSetCmd = &cobra.Command{
	Use:   "set <provider> <username>",
	Short: "Store credentials for a provider",
	Long: `Store credentials for a provider (GitHub, GitLab or BitBucket).

The token is read from --token or, when omitted, from GOHOPS_GIT_TOKEN.`,
	Args: cobra.ExactArgs(2),
	RunE: runGitProviderSet,
}

func init() {
	rootCmd.AddCommand(gitCmd)
	gitCmd.AddCommand(gitReposCmd, gitRepoCmd, gitCloneCmd, gitStatusCmd, gitCommitCmd,
		gitPushCmd, gitPullCmd, gitCheckoutCmd, gitBranchCmd, gitCheckoutFilesCmd,
		gitCommitsCmd, gitProviderCmd)
	gitBranchCmd.AddCommand(gitBranchCreateCmd, gitBranchDeleteCmd)
	gitProviderCmd.AddCommand(gitProviderListCmd, gitProviderGetCmd, gitProviderSetCmd)

	gitCmd.PersistentFlags().String("repo-path", "", "Dataset path of the repository when the name is ambiguous")

	gitReposCmd.Flags().Bool("json", false, "Output as JSON")
	gitRepoCmd.Flags().Bool("json", false, "Output as JSON")
	gitStatusCmd.Flags().Bool("json", false, "Output as JSON")
	gitCommitsCmd.Flags().Bool("json", false, "Output as JSON")

	gitCloneCmd.Flags().String("provider", "GitHub", "Git provider: GitHub, GitLab or BitBucket")
	gitCloneCmd.Flags().String("branch", "", "Branch to check out after cloning")

	gitCommitCmd.Flags().StringP("message", "m", "", "Commit message")
	gitCommitCmd.Flags().Bool("all", false, "Commit all changed files")
	gitCommitCmd.Flags().StringSlice("files", nil, "Patterns selecting changed files to commit")
	_ = gitCommitCmd.MarkFlagRequired("message")

	for _, c := range []*cobra.Command{gitPushCmd, gitPullCmd} {
		c.Flags().String("remote", "origin", "Remote name")
		c.Flags().Bool("force", false, "Force the operation")
	}

	gitCheckoutCmd.Flags().String("commit", "", "Commit hash to check out instead of a branch")
	gitCheckoutCmd.Flags().Bool("force", false, "Discard local changes")

	gitBranchCreateCmd.Flags().Bool("checkout", false, "Check out the new branch")

	gitProviderSetCmd.Flags().String("token", "", "Access token")
}

// withRepo opens a session and resolves the repository named name.
func withRepo(cmd *cobra.Command, name string, fn func(ctx context.Context, s *session, repos *git.Repos, repo git.Repo) error) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	repoPath, _ := cmd.Flags().GetString("repo-path")

	repos := s.gitRepos()
	repo, err := repos.GetRepo(ctx, name, repoPath)
	if err != nil {
		return platformError("Failed to find repository", err)
	}
	return fn(ctx, s, repos, repo)
}

func runGitRepos(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	repos, err := s.gitRepos().GetRepos(ctx)
	if err != nil {
		return platformError("Failed to list repositories", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, repos)
	}
	if len(repos) == 0 {
		_, _ = fmt.Fprintln(out, "No repositories found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "ID\tNAME\tBRANCH\tPROVIDER\tPATH")
	for _, r := range repos {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Name, orDash(r.CurrentBranch), orDash(r.Provider), r.Path)
	}
	return nil
}

func runGitRepo(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return withRepo(cmd, args[0], func(_ context.Context, _ *session, _ *git.Repos, repo git.Repo) error {
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, repo)
		}
		_, _ = fmt.Fprintf(out, "id=%d\n", repo.ID)
		_, _ = fmt.Fprintf(out, "name=%s\n", repo.Name)
		_, _ = fmt.Fprintf(out, "path=%s\n", repo.Path)
		if repo.Provider != "" {
			_, _ = fmt.Fprintf(out, "provider=%s\n", repo.Provider)
		}
		if repo.CurrentBranch != "" {
			_, _ = fmt.Fprintf(out, "branch=%s\n", repo.CurrentBranch)
		}
		if repo.CurrentCommit != nil {
			_, _ = fmt.Fprintf(out, "commit=%s\n", repo.CurrentCommit.Hash)
		}
		return nil
	})
}

func runGitClone(cmd *cobra.Command, args []string) error {
	provider, _ := cmd.Flags().GetString("provider")
	branch, _ := cmd.Flags().GetString("branch")
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	repo, err := s.gitRepos().Clone(ctx, args[0], args[1], provider, branch)
	if err != nil {
		return platformError("Clone failed", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cloned %s into %s (id %d)\n", args[0], repo.Path, repo.ID)
	return nil
}

func runGitStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return withRepo(cmd, args[0], func(ctx context.Context, _ *session, repos *git.Repos, repo git.Repo) error {
		status, err := repos.Status(ctx, repo.ID)
		if err != nil {
			return platformError("Status failed", err)
		}

		out := cmd.OutOrStdout()
		files := status.Files()
		if jsonOutput {
			return printJSON(out, files)
		}
		if !status.IsMany() {
			// aggregate answer, e.g. "Nothing to commit"
			_, _ = fmt.Fprintln(out, strings.TrimSpace(status.Single.Status+" "+status.Single.Extra))
			return nil
		}
		if len(files) == 0 {
			_, _ = fmt.Fprintln(out, "Working tree clean")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		defer func() { _ = w.Flush() }()
		for _, f := range files {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", f.Status, f.File)
		}
		return nil
	})
}

func runGitCommit(cmd *cobra.Command, args []string) error {
	message, _ := cmd.Flags().GetString("message")
	all, _ := cmd.Flags().GetBool("all")
	patterns, _ := cmd.Flags().GetStringSlice("files")
	if all && len(patterns) > 0 {
		return exitError(foundry.ExitInvalidArgument, "--all and --files are mutually exclusive", nil)
	}

	return withRepo(cmd, args[0], func(ctx context.Context, _ *session, repos *git.Repos, repo git.Repo) error {
		var files []string
		if len(patterns) > 0 {
			status, err := repos.Status(ctx, repo.ID)
			if err != nil {
				return platformError("Status failed", err)
			}
			files, err = git.SelectFiles(status.Files(), patterns)
			if err != nil {
				return exitError(foundry.ExitInvalidArgument, "Invalid file pattern", err)
			}
			if len(files) == 0 {
				return exitError(foundry.ExitInvalidArgument, "No changed files match the given patterns", nil)
			}
		}

		if err := repos.Commit(ctx, repo.ID, message, all, files); err != nil {
			return platformError("Commit failed", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Committed to %s\n", repo.Name)
		return nil
	})
}

func runGitRemote(action git.Action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetString("remote")
		force, _ := cmd.Flags().GetBool("force")
		branch := args[1]

		return withRepo(cmd, args[0], func(ctx context.Context, _ *session, repos *git.Repos, repo git.Repo) error {
			run, label := repos.Pull, "Pull"
			if action == git.ActionPush {
				run, label = repos.Push, "Push"
			}
			if err := run(ctx, repo.ID, remote, branch, force); err != nil {
				return platformError(label+" failed", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s of %s/%s in %s done\n", label, remote, branch, repo.Name)
			return nil
		})
	}
}

func runGitCheckout(cmd *cobra.Command, args []string) error {
	commit, _ := cmd.Flags().GetString("commit")
	force, _ := cmd.Flags().GetBool("force")
	branch := ""
	if len(args) > 1 {
		branch = args[1]
	}
	if branch == "" && commit == "" {
		return exitError(foundry.ExitInvalidArgument, "A branch or --commit is required", nil)
	}

	return withRepo(cmd, args[0], func(ctx context.Context, _ *session, repos *git.Repos, repo git.Repo) error {
		if err := repos.Checkout(ctx, repo.ID, branch, commit, force); err != nil {
			return platformError("Checkout failed", err)
		}
		target := branch
		if target == "" {
			target = commit
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Checked out %s in %s\n", target, repo.Name)
		return nil
	})
}

func runGitBranchCreate(cmd *cobra.Command, args []string) error {
	checkout, _ := cmd.Flags().GetBool("checkout")
	return withRepo(cmd, args[0], func(ctx context.Context, _ *session, repos *git.Repos, repo git.Repo) error {
		if err := repos.CreateBranch(ctx, repo.ID, args[1], checkout); err != nil {
			return platformError("Branch creation failed", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created branch %s in %s\n", args[1], repo.Name)
		return nil
	})
}

func runGitBranchDelete(cmd *cobra.Command, args []string) error {
	return withRepo(cmd, args[0], func(ctx context.Context, _ *session, repos *git.Repos, repo git.Repo) error {
		if err := repos.DeleteBranch(ctx, repo.ID, args[1]); err != nil {
			return platformError("Branch deletion failed", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted branch %s in %s\n", args[1], repo.Name)
		return nil
	})
}

func runGitCheckoutFiles(cmd *cobra.Command, args []string) error {
	return withRepo(cmd, args[0], func(ctx context.Context, _ *session, repos *git.Repos, repo git.Repo) error {
		if err := repos.CheckoutFiles(ctx, repo.ID, args[1:]); err != nil {
			return platformError("Checkout of files failed", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored %d file(s) in %s\n", len(args)-1, repo.Name)
		return nil
	})
}

func runGitCommits(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return withRepo(cmd, args[0], func(ctx context.Context, _ *session, repos *git.Repos, repo git.Repo) error {
		commits, err := repos.GetCommits(ctx, repo.ID, args[1])
		if err != nil {
			return platformError("Failed to list commits", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, commits)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		defer func() { _ = w.Flush() }()
		for _, c := range commits {
			hash := c.Hash
			if len(hash) > 10 {
				hash = hash[:10]
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", hash, orDash(c.Time), orDash(c.Name), firstLine(c.Message))
		}
		return nil
	})
}

func runGitProviderList(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	providers, err := s.gitRepos().GetProviders(ctx)
	if err != nil {
		return platformError("Failed to list providers", err)
	}

	out := cmd.OutOrStdout()
	if len(providers) == 0 {
		_, _ = fmt.Fprintln(out, "No providers configured")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "PROVIDER\tUSERNAME")
	for _, p := range providers {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", p.Provider, p.Username)
	}
	return nil
}

func runGitProviderGet(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	p, err := s.gitRepos().GetProvider(ctx, args[0])
	if err != nil {
		return platformError("Failed to find provider", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "provider=%s\nusername=%s\n", p.Provider, p.Username)
	return nil
}

func runGitProviderSet(cmd *cobra.Command, args []string) error {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = lookupEnv("GOHOPS_GIT_TOKEN")
	}
	if token == "" {
		return exitError(foundry.ExitInvalidArgument, "A token is required", fmt.Errorf("set --token or GOHOPS_GIT_TOKEN"))
	}

	ctx := commandContext(cmd)
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	if err := s.gitRepos().SetProvider(ctx, args[0], args[1], token); err != nil {
		return platformError("Failed to store provider credentials", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for %s\n", args[0])
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
