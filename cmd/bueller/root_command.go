package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/comigor/bueller-go/internal/agent"
	"github.com/comigor/bueller-go/internal/config"
	"github.com/comigor/bueller-go/internal/history"
	"github.com/comigor/bueller-go/internal/issue"
	"github.com/comigor/bueller-go/internal/llm"
	"github.com/comigor/bueller-go/internal/logger"
	"github.com/comigor/bueller-go/internal/runner"
	"github.com/comigor/bueller-go/internal/vcs"
	"github.com/comigor/bueller-go/pkg/tools"
)

func executeCLI(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd := newRootCommand(stdout, stderr)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:           "bueller",
		Short:         "work through a queue of markdown issues with an LLM agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./bueller.yaml when present)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("issues-dir", "./issues", "directory containing the issue queue")
	mustBind(v, "config", flags.Lookup("config"))
	mustBind(v, "log_level", flags.Lookup("log-level"))
	mustBind(v, "issues.dir", flags.Lookup("issues-dir"))

	rootCmd.AddCommand(newRunCommand(v, stdout), newIssueCommand(v, stdout, stderr))
	return rootCmd
}

// mustBind binds flag to key. Binding only fails for undeclared flags.
func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func newRunCommand(v *viper.Viper, stdout io.Writer) *cobra.Command {
	var (
		maxIterations  int
		gitCommit      bool
		noGit          bool
		continuePrompt string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "process open issues until the queue is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("max") || flags.Changed("max-iterations") {
				v.Set("run.max_iterations", maxIterations)
			}
			if flags.Changed("git") || flags.Changed("git-commit") {
				v.Set("run.git_commit", gitCommit)
			}
			if noGit {
				v.Set("run.git_commit", false)
			}
			if flags.Changed("continue") {
				v.Set("run.continue", true)
				v.Set("run.continue_prompt", continuePrompt)
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runQueue(cmd.Context(), cfg, stdout)
		},
	}

	flags := cmd.Flags()
	flags.String("faq-dir", "./faq", "directory containing FAQ and troubleshooting guides")
	flags.String("prompt", "", "prompt template file (default <issues-dir>/prompt.md)")
	flags.IntVar(&maxIterations, "max", 25, "maximum number of iterations")
	flags.IntVar(&maxIterations, "max-iterations", 25, "maximum number of iterations")
	flags.BoolVar(&gitCommit, "git", true, "commit the working tree after each iteration")
	flags.BoolVar(&gitCommit, "git-commit", true, "alias of --git")
	flags.BoolVar(&noGit, "no-git", false, "disable git commits")
	flags.StringVar(&continuePrompt, "continue", "", "continue the previous session, optionally with PROMPT")
	flags.Lookup("continue").NoOptDefVal = "continue"
	flags.Lookup("max-iterations").Hidden = true
	flags.Lookup("git-commit").Hidden = true

	mustBind(v, "faq_dir", flags.Lookup("faq-dir"))
	mustBind(v, "run.prompt_file", flags.Lookup("prompt"))
	return cmd
}

func runQueue(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	printBanner(stdout, cfg)

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return err
	}

	store := history.Open(ctx, cfg.History.DBPath)
	defer store.Close()

	builtins := tools.NewToolManager(tools.IssueTools(cfg.Issues.Layout(), cfg.Issues.Limits())...)
	ag := agent.New(ctx, llmClient, *cfg, builtins, stdout)
	defer func() {
		if err := ag.Close(); err != nil {
			logger.L.Warn("closing MCP clients", "error", err)
		}
	}()

	var committer runner.Committer
	if cfg.Run.GitCommit {
		committer = vcs.NewCommitter(vcs.CommandRunner{})
	}

	err = runner.New(*cfg, ag, committer, store, stdout).Run(ctx)
	if err != nil && !errors.Is(err, runner.ErrMaxIterations) {
		return err
	}
	fmt.Fprintln(stdout, "\nDone!")
	return nil
}

func printBanner(w io.Writer, cfg *config.Config) {
	gitState := "disabled"
	if cfg.Run.GitCommit {
		gitState = "enabled"
	}
	fmt.Fprintln(w, titleStyle.Render("Bueller? Bueller?"))
	fmt.Fprintln(w, "-----------------")
	for _, row := range [][2]string{
		{"Issues directory:", cfg.Issues.Dir},
		{"FAQ directory:", cfg.FAQDir},
		{"Max iterations:", fmt.Sprint(cfg.Run.MaxIterations)},
		{"Git auto-commit:", gitState},
		{"Prompt file:", cfg.Run.PromptFile},
	} {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(row[0]), row[1])
	}
	if cfg.Run.Continue {
		fmt.Fprintf(w, "%s %q\n", labelStyle.Render("Continue:"), cfg.Run.ContinuePrompt)
	}
}

func newIssueCommand(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	var index string

	cmd := &cobra.Command{
		Use:   "issue ISSUE...",
		Short: "print abbreviated issue conversations",
		Long: "Print an abbreviated view of each issue conversation. ISSUE is a filename in\n" +
			"open/, review/ or stuck/ (the .md suffix is optional) or a path to an issue file.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			summarizeIssues(cfg.Issues.Layout(), cfg.Issues.Limits(), args, index, stdout, stderr)
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "show message N, or messages M through N, in full (N or M,N)")
	return cmd
}

// summarizeIssues prints one summary block per reference. Failures are
// reported on stderr and do not stop the remaining references.
func summarizeIssues(layout issue.Layout, limits issue.Limits, refs []string, index string, stdout, stderr io.Writer) {
	var spec *issue.IndexSpec
	if index != "" {
		parsed, err := issue.ValidateIndexSpec(index)
		if err != nil {
			logger.L.Warn("ignoring --index", "index", index, "error", err)
			fmt.Fprintln(stderr, warnStyle.Render(fmt.Sprintf("Warning: ignoring invalid --index %q", index)))
		} else {
			spec = &parsed
		}
	}

	printed := false
	for _, ref := range refs {
		located, ok := layout.Resolve(issue.NormalizeReference(ref))
		if !ok {
			fmt.Fprintln(stderr, errorStyle.Render("Error: Could not find issue: "+ref))
			continue
		}
		summary, err := issue.Summarize(located, limits)
		if err != nil {
			fmt.Fprintln(stderr, errorStyle.Render(fmt.Sprintf("Error summarizing %s: %v", ref, err)))
			continue
		}
		if spec != nil {
			summary = issue.Expand(summary, *spec)
		}

		if printed {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintln(stdout, issue.Format(summary, layout))
		printed = true
	}
}
