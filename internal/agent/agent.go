// Package agent runs one language-model session against an issue: the model
// is called in turns, tool calls are executed through the built-in issue
// tools or the configured MCP servers, and the results are fed back until
// the model answers without requesting tools.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/bueller-go/internal/config"
	"github.com/comigor/bueller-go/internal/llm"
	"github.com/comigor/bueller-go/internal/logger"
	"github.com/comigor/bueller-go/pkg/tools"
)

// DefaultMaxTurns bounds a session when the configuration does not.
const DefaultMaxTurns = 50

// ErrMaxTurns is returned when the model keeps requesting tools past the
// configured number of turns.
var ErrMaxTurns = errors.New("exceeded maximum interaction turns")

type fsmState string

const (
	stateIdle           fsmState = "Idle"
	stateReadyToCallLLM fsmState = "ReadyToCallLLM"
	stateExecutingTools fsmState = "ExecutingTools"
	stateDone           fsmState = "Done"
	stateError          fsmState = "Error"
)

type fsmTrigger string

const (
	triggerProcessInput            fsmTrigger = "ProcessInput"
	triggerLLMRespondedWithContent fsmTrigger = "LLMRespondedWithContent"
	triggerLLMRequestedTools       fsmTrigger = "LLMRequestedTools"
	triggerToolsExecutionCompleted fsmTrigger = "ToolsExecutionCompleted"
	triggerErrorOccurred           fsmTrigger = "ErrorOccurred"
)

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// MCPClientInterface defines the methods our agent expects from an MCP client.
type MCPClientInterface interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Request is the input of one session. A non-empty Transcript resumes an
// earlier session; Prompt is then appended as the next user message.
type Request struct {
	Prompt     string
	Transcript []openai.ChatCompletionMessage
}

// Result carries the model's final answer and the complete transcript,
// system and user messages included.
type Result struct {
	Content    string
	Transcript []openai.ChatCompletionMessage
}

// Agent is the main agent struct
type Agent struct {
	llmClient llm.Client
	cfg       config.LLMConfig
	maxTurns  int
	out       io.Writer

	builtins   *tools.ToolManager
	mcpClients []MCPClientInterface
	mcpTools   map[string]MCPClientInterface
	llmTools   []openai.Tool
}

// New creates an agent offering the built-in tools and every tool exposed by
// the configured MCP servers. Servers that cannot be reached are logged and
// skipped. Session output is rendered to out.
func New(ctx context.Context, llmClient llm.Client, appCfg config.Config, builtins *tools.ToolManager, out io.Writer) *Agent {
	if out == nil {
		out = io.Discard
	}
	maxTurns := appCfg.Run.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	a := &Agent{
		llmClient: llmClient,
		cfg:       appCfg.LLM,
		maxTurns:  maxTurns,
		out:       out,
		builtins:  builtins,
		mcpTools:  make(map[string]MCPClientInterface),
	}

	for _, tool := range builtins.List() {
		a.llmTools = append(a.llmTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}

	for _, serverCfg := range appCfg.MCPServers {
		mcpC, err := connectMCPServer(ctx, serverCfg)
		if err != nil {
			logger.L.Error("Failed to connect MCP server", "name", serverCfg.Name, "type", serverCfg.Type, "error", err)
			continue
		}
		if err := a.registerMCPClient(ctx, serverCfg.Name, mcpC); err != nil {
			logger.L.Error("Failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			if cerr := mcpC.Close(); cerr != nil {
				logger.L.Warn("MCP client close error after init failure", "error", cerr)
			}
		}
	}

	if len(a.mcpClients) == 0 && len(appCfg.MCPServers) > 0 {
		logger.L.Warn("No MCP clients were successfully initialized despite servers configured.", "length", len(appCfg.MCPServers))
	}
	return a
}

func connectMCPServer(ctx context.Context, serverCfg config.MCPServerConfig) (*client.Client, error) {
	var (
		mcpC *client.Client
		err  error
	)
	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var opts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(serverCfg.Headers))
		}
		mcpC, err = client.NewSSEMCPClient(serverCfg.URL, opts...)
	case config.ClientTypeStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		mcpC, err = client.NewStreamableHttpClient(serverCfg.URL, opts...)
	case config.ClientTypeStdio:
		env := make([]string, 0, len(serverCfg.Env))
		for k, v := range serverCfg.Env {
			env = append(env, k+"="+v)
		}
		// stdio clients start their subprocess on creation.
		return client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
	case "":
		return nil, errors.New("type not set; use 'sse', 'streamable_http' or 'stdio'")
	default:
		return nil, fmt.Errorf("unsupported type %q", serverCfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := mcpC.Start(ctx); err != nil {
		if cerr := mcpC.Close(); cerr != nil {
			logger.L.Warn("MCP client close error after start failure", "error", cerr)
		}
		return nil, fmt.Errorf("start transport: %w", err)
	}
	return mcpC, nil
}

// registerMCPClient initializes c and offers its tools to the model. Tools
// whose name is already taken by a built-in or an earlier server are skipped.
func (a *Agent) registerMCPClient(ctx context.Context, name string, c MCPClientInterface) error {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "bueller", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return err
	}
	logger.L.Info("Server initialized", "name", name)
	a.mcpClients = append(a.mcpClients, c)

	serverTools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		// The server stays registered; it may still come back for later calls.
		logger.L.Warn("Failed to list tools for MCP client", "name", name, "error", err)
		return nil
	}

	for _, mcpTool := range serverTools.Tools {
		if a.hasTool(mcpTool.Name) {
			logger.L.Warn("Tool from MCP server already registered. Skipping.", "tool", mcpTool.Name, "name", name)
			continue
		}
		a.mcpTools[mcpTool.Name] = c
		a.llmTools = append(a.llmTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  toolSchema(mcpTool),
			},
		})
		logger.L.Debug("Registered tool from MCP server", "tool", mcpTool.Name, "name", name)
	}
	return nil
}

func (a *Agent) hasTool(name string) bool {
	if _, err := a.builtins.GetTool(name); err == nil {
		return true
	}
	_, ok := a.mcpTools[name]
	return ok
}

// toolSchema picks the JSON schema to hand the model for an MCP tool.
func toolSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 && string(t.RawInputSchema) != "null" {
		return t.RawInputSchema
	}
	if t.InputSchema.Type == "" {
		return emptySchema
	}
	b, err := json.Marshal(t.InputSchema)
	if err != nil {
		logger.L.Warn("Failed to marshal InputSchema for tool. Using empty schema.", "tool", t.Name, "error", err)
		return emptySchema
	}
	return b
}

// Tools returns the names of every tool offered to the model.
func (a *Agent) Tools() []string {
	names := make([]string, 0, len(a.llmTools))
	for _, t := range a.llmTools {
		names = append(names, t.Function.Name)
	}
	return names
}

// Close shuts down all MCP clients.
func (a *Agent) Close() error {
	var errs []error
	for _, c := range a.mcpClients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.mcpClients = nil
	return errors.Join(errs...)
}

// session is the mutable state of one Process call.
type session struct {
	messages []openai.ChatCompletionMessage
	reply    openai.ChatCompletionMessage
	turn     int
	next     fsmTrigger
	err      error
}

func (s *session) fail(err error) {
	s.err = err
	s.next = triggerErrorOccurred
}

// Process runs a session to completion. The returned Result always carries
// the transcript so far, also when an error ends the session early.
func (a *Agent) Process(ctx context.Context, req Request) (Result, error) {
	s := &session{messages: a.initialMessages(req), next: triggerProcessInput}
	fsm := a.stateMachine(s)

	for {
		if err := fsm.FireCtx(ctx, s.next); err != nil {
			return Result{Transcript: s.messages}, fmt.Errorf("agent state machine: %w", err)
		}
		switch fsm.MustState() {
		case stateDone:
			return Result{Content: s.reply.Content, Transcript: s.messages}, nil
		case stateError:
			return Result{Transcript: s.messages}, s.err
		}
	}
}

func (a *Agent) initialMessages(req Request) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if len(req.Transcript) > 0 {
		messages = append(messages, req.Transcript...)
	} else if a.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: a.cfg.SystemPrompt,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
}

// stateMachine wires the session states. Entry actions never fire triggers
// themselves; they record the next trigger on s and Process fires it.
func (a *Agent) stateMachine(s *session) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(stateIdle)

	fsm.Configure(stateIdle).
		Permit(triggerProcessInput, stateReadyToCallLLM)

	fsm.Configure(stateReadyToCallLLM).
		OnEntry(func(ctx context.Context, _ ...any) error {
			a.callLLM(ctx, s)
			return nil
		}).
		Permit(triggerLLMRequestedTools, stateExecutingTools).
		Permit(triggerLLMRespondedWithContent, stateDone).
		Permit(triggerErrorOccurred, stateError)

	fsm.Configure(stateExecutingTools).
		OnEntry(func(ctx context.Context, _ ...any) error {
			a.executeTools(ctx, s)
			return nil
		}).
		Permit(triggerToolsExecutionCompleted, stateReadyToCallLLM)

	fsm.Configure(stateDone)
	fsm.Configure(stateError)

	return fsm
}

func (a *Agent) callLLM(ctx context.Context, s *session) {
	if err := ctx.Err(); err != nil {
		s.fail(err)
		return
	}
	if s.turn >= a.maxTurns {
		logger.L.Warn("Max interaction turns reached.", "maxTurns", a.maxTurns)
		s.fail(ErrMaxTurns)
		return
	}
	s.turn++
	logger.L.Debug("Calling LLM", "turn", s.turn, "messages", len(s.messages))

	resp, err := a.llmClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.cfg.Model,
		Messages: s.messages,
		Tools:    a.llmTools,
	})
	if err != nil {
		logger.L.Error("LLM call failed", "error", err)
		s.fail(fmt.Errorf("llm call: %w", err))
		return
	}
	if len(resp.Choices) == 0 {
		s.fail(errors.New("llm call: response has no choices"))
		return
	}

	msg := resp.Choices[0].Message
	if msg.Role == "" {
		msg.Role = openai.ChatMessageRoleAssistant
	}
	s.messages = append(s.messages, msg)
	s.reply = msg
	a.renderText(msg.Content)

	if len(msg.ToolCalls) > 0 {
		s.next = triggerLLMRequestedTools
		return
	}
	s.next = triggerLLMRespondedWithContent
}

func (a *Agent) executeTools(ctx context.Context, s *session) {
	for _, call := range s.reply.ToolCalls {
		a.renderToolCall(call)
		s.messages = append(s.messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    a.executeTool(ctx, call),
			ToolCallID: call.ID,
			Name:       call.Function.Name,
		})
	}
	s.next = triggerToolsExecutionCompleted
}

// executeTool runs one tool call. Failures are reported to the model as the
// tool's output rather than ending the session.
func (a *Agent) executeTool(ctx context.Context, call openai.ToolCall) string {
	name := call.Function.Name
	if tool, err := a.builtins.GetTool(name); err == nil {
		out, err := tool.Run(ctx, call.Function.Arguments)
		if err != nil {
			logger.L.Warn("Built-in tool failed", "tool", name, "error", err)
			return "Error: " + err.Error()
		}
		return out
	}

	mcpC, ok := a.mcpTools[name]
	if !ok {
		logger.L.Warn("LLM requested an unknown tool", "tool", name)
		return "Error: unknown tool " + name
	}
	var args map[string]any
	if strings.TrimSpace(call.Function.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logger.L.Error("Failed to unmarshal tool arguments", "tool", name, "error", err)
			return "Error: Could not parse arguments for tool " + name
		}
	}
	return executeMCPTool(ctx, mcpC, name, args)
}

// executeMCPTool calls an MCP tool and flattens its result to text.
func executeMCPTool(ctx context.Context, c MCPClientInterface, name string, args map[string]any) string {
	logger.L.Debug("Calling MCP tool", "tool", name, "arguments", args)
	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		logger.L.Warn("MCP CallTool failed", "tool", name, "error", err)
		return "Error: " + err.Error()
	}
	if result == nil {
		return "Error: tool returned no result"
	}

	text := firstText(result.Content)
	if result.IsError {
		logger.L.Warn("MCP tool reported an error", "tool", name, "content", text)
		if text == "" {
			return "Error: tool execution failed without details"
		}
		return "Error: " + text
	}
	if text != "" {
		return text
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "Tool executed successfully, but result could not be formatted."
	}
	return string(b)
}

func firstText(content []mcp.Content) string {
	for _, item := range content {
		if tc, ok := item.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func (a *Agent) renderText(text string) {
	if text = strings.TrimSpace(text); text != "" {
		fmt.Fprintf(a.out, "\n%s\n", text)
	}
}

func (a *Agent) renderToolCall(call openai.ToolCall) {
	fmt.Fprintf(a.out, "\n[%s] %s\n", call.Function.Name, describeArgs(call.Function.Arguments))
}

// summaryKeys are the argument names worth echoing for a tool call, in
// order of preference.
var summaryKeys = []string{"file_path", "path", "command", "pattern", "issue", "url"}

func describeArgs(raw string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return ""
	}
	var summary string
	for _, key := range summaryKeys {
		if v, ok := args[key]; ok {
			summary = fmt.Sprint(v)
			break
		}
	}
	if status, ok := args["status"]; ok && summary != "" {
		summary += " -> " + fmt.Sprint(status)
	}
	return summary
}
