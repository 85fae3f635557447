// Package runner drives the agent through the open issue queue, one issue per
// iteration, and records each iteration in history and git.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/bueller-go/internal/agent"
	"github.com/comigor/bueller-go/internal/config"
	"github.com/comigor/bueller-go/internal/history"
	"github.com/comigor/bueller-go/internal/issue"
	"github.com/comigor/bueller-go/internal/logger"
	"github.com/comigor/bueller-go/internal/prompt"
	"github.com/comigor/bueller-go/internal/queue"
)

// ErrMaxIterations reports that the loop stopped with issues still open.
var ErrMaxIterations = errors.New("reached maximum iterations")

var (
	iterationStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	frameStyle     = lipgloss.NewStyle().Faint(true)
	outcomeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Agent runs one session.
type Agent interface {
	Process(ctx context.Context, req agent.Request) (agent.Result, error)
}

// Committer records the working tree after an iteration.
type Committer interface {
	Commit(ctx context.Context, issueID, status string) (bool, error)
}

// Runner is the iteration loop. A nil committer disables git commits.
type Runner struct {
	cfg       config.Config
	layout    issue.Layout
	agent     Agent
	committer Committer
	history   *history.Store
	out       io.Writer
}

func New(cfg config.Config, a Agent, committer Committer, store *history.Store, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		cfg:       cfg,
		layout:    cfg.Issues.Layout(),
		agent:     a,
		committer: committer,
		history:   store,
		out:       out,
	}
}

// Run works through the queue until it is empty or MaxIterations is reached,
// in which case ErrMaxIterations is returned. An agent failure stops the loop;
// commit failures are logged and the loop goes on.
func (r *Runner) Run(ctx context.Context) error {
	if err := queue.EnsureDirectories(r.layout, r.cfg.FAQDir); err != nil {
		return err
	}
	template, err := prompt.LoadOrCreate(r.cfg.Run.PromptFile)
	if err != nil {
		return err
	}

	for iteration := 1; iteration <= r.cfg.Run.MaxIterations; iteration++ {
		fmt.Fprintf(r.out, "\n%s\n\n", iterationStyle.Render(fmt.Sprintf("### Iteration %d ###", iteration)))

		open, err := queue.OpenIssues(r.layout)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			fmt.Fprintf(r.out, "No more issues in %s/. Exiting.\n", r.layout.Open)
			return nil
		}
		current := open[0]
		fmt.Fprintf(r.out, "Found %d open issue(s)\nNext issue: %s\n", len(open), current)

		resume := iteration == 1 && r.cfg.Run.Continue
		if err := r.runAgent(ctx, template, current, resume); err != nil {
			return fmt.Errorf("agent on %s: %w", current, err)
		}

		r.commit(ctx, current)
	}

	fmt.Fprintf(r.out, "\nReached maximum iterations (%d). Exiting.\n", r.cfg.Run.MaxIterations)
	return ErrMaxIterations
}

func (r *Runner) runAgent(ctx context.Context, template, issueFile string, resume bool) error {
	sessionID := r.history.NewSession()
	req := agent.Request{Prompt: prompt.Build(template, r.layout, r.cfg.FAQDir, issueFile)}
	if resume {
		if id, transcript := r.previousSession(ctx); len(transcript) > 0 {
			logger.L.Info("continuing previous session", "session", id, "messages", len(transcript))
			sessionID = id
			req = agent.Request{Prompt: r.cfg.Run.ContinuePrompt, Transcript: transcript}
		} else {
			logger.L.Warn("no previous session to continue; starting fresh")
		}
	}

	fmt.Fprintln(r.out, "\n"+frameStyle.Render("--- Starting agent ---"))
	res, err := r.agent.Process(ctx, req)
	r.save(ctx, sessionID, issueFile, res.Transcript, len(req.Transcript))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, "\n"+frameStyle.Render("--- Agent finished ---"))
	return nil
}

// previousSession loads the transcript of the most recent stored session.
func (r *Runner) previousSession(ctx context.Context) (string, []openai.ChatCompletionMessage) {
	id, ok := r.history.LatestSession(ctx)
	if !ok {
		return "", nil
	}
	var transcript []openai.ChatCompletionMessage
	for _, m := range r.history.List(ctx, id) {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		if m.Payload != "" {
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.L.Warn("skipping unreadable history payload", "id", m.ID, "error", err)
			}
		}
		transcript = append(transcript, msg)
	}
	return id, transcript
}

// save stores the messages of transcript from index from onward.
func (r *Runner) save(ctx context.Context, sessionID, issueFile string, transcript []openai.ChatCompletionMessage, from int) {
	if from > len(transcript) {
		return
	}
	for _, msg := range transcript[from:] {
		payload, err := json.Marshal(msg)
		if err != nil {
			logger.L.Warn("failed to encode message for history", "error", err)
			payload = nil
		}
		r.history.Save(ctx, history.Message{
			SessionID: sessionID,
			Issue:     issueFile,
			Role:      msg.Role,
			Content:   msg.Content,
			Payload:   string(payload),
		})
	}
}

func (r *Runner) commit(ctx context.Context, issueFile string) {
	if r.committer == nil {
		return
	}

	outcome := queue.OutcomeOf(r.layout, issueFile)
	switch outcome {
	case queue.OutcomeDone:
		fmt.Fprintln(r.out, "\n"+outcomeStyle.Render("Issue completed - creating git commit..."))
	case queue.OutcomeStuck:
		fmt.Fprintln(r.out, "\n"+outcomeStyle.Render("Issue moved to stuck - creating git commit..."))
	case queue.OutcomeInProgress:
		fmt.Fprintln(r.out, "\n"+outcomeStyle.Render("Issue still in progress - creating git commit..."))
	default:
		return
	}

	committed, err := r.committer.Commit(ctx, queue.IssueID(issueFile), string(outcome))
	if err != nil {
		logger.L.Error("git commit failed", "issue", issueFile, "error", err)
		fmt.Fprintln(r.out, failStyle.Render("Git commit failed: "+err.Error()))
		return
	}
	if committed {
		fmt.Fprintf(r.out, "Committed: %s %s\n", queue.IssueID(issueFile), outcome)
	} else {
		fmt.Fprintln(r.out, "No changes to commit.")
	}
}
