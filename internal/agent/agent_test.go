package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/bueller-go/internal/config"
	"github.com/comigor/bueller-go/pkg/tools"
)

// This mirrors MCPClientInterface in agent.go
type mockMCPClient struct {
	InitializeFunc func(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListToolsFunc  func(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallToolFunc   func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed         bool
}

func (m *mockMCPClient) Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx, req)
	}
	return &mcp.InitializeResult{}, nil
}

func (m *mockMCPClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if m.ListToolsFunc != nil {
		return m.ListToolsFunc(ctx, req)
	}
	return &mcp.ListToolsResult{}, nil
}

func (m *mockMCPClient) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.CallToolFunc != nil {
		return m.CallToolFunc(ctx, request)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "mock default success for " + request.Params.Name}},
	}, nil
}

func (m *mockMCPClient) Close() error {
	m.closed = true
	return nil
}

type mockLLM struct {
	calls    []openai.ChatCompletionResponse
	err      error
	requests []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(_ context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("mockLLM: no more responses configured")
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func contentResponse(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Content: text},
	}}}
}

func toolCallResponse(id, name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{ToolCalls: []openai.ToolCall{{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: args},
		}}},
	}}}
}

type echoTool struct{}

func (echoTool) Name() string                { return "echo" }
func (echoTool) Description() string         { return "echoes its input" }
func (echoTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Run(_ context.Context, args string) (string, error) {
	if args == `{"fail":true}` {
		return "", errors.New("echo refused")
	}
	return "echo " + args, nil
}

func testConfig() config.Config {
	return config.Config{LLM: config.LLMConfig{Model: "gpt", SystemPrompt: "be brief"}}
}

func TestAgentProcess_LLMRespondsDirectly(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{contentResponse("Hello, I am a helpful AI.")}}
	var out bytes.Buffer
	a := New(context.Background(), llmClient, testConfig(), nil, &out)
	require.Empty(t, a.Tools())

	res, err := a.Process(context.Background(), Request{Prompt: "User says hi"})
	require.NoError(t, err)
	require.Equal(t, "Hello, I am a helpful AI.", res.Content)
	require.Equal(t, "\nHello, I am a helpful AI.\n", out.String())

	require.Len(t, res.Transcript, 3)
	require.Equal(t, openai.ChatMessageRoleSystem, res.Transcript[0].Role)
	require.Equal(t, "be brief", res.Transcript[0].Content)
	require.Equal(t, openai.ChatMessageRoleUser, res.Transcript[1].Role)
	require.Equal(t, openai.ChatMessageRoleAssistant, res.Transcript[2].Role)

	require.Len(t, llmClient.requests, 1)
	require.Equal(t, "gpt", llmClient.requests[0].Model)
}

func TestAgentProcess_BuiltinTool(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("call_1", "echo", `{"issue":"p1-001.md"}`),
		contentResponse("done"),
	}}
	var out bytes.Buffer
	a := New(context.Background(), llmClient, testConfig(), tools.NewToolManager(echoTool{}), &out)
	require.Equal(t, []string{"echo"}, a.Tools())

	res, err := a.Process(context.Background(), Request{Prompt: "go"})
	require.NoError(t, err)
	require.Equal(t, "done", res.Content)
	require.Contains(t, out.String(), "[echo] p1-001.md")

	toolMsg := res.Transcript[3]
	require.Equal(t, openai.ChatMessageRoleTool, toolMsg.Role)
	require.Equal(t, "call_1", toolMsg.ToolCallID)
	require.Equal(t, `echo {"issue":"p1-001.md"}`, toolMsg.Content)

	// The second request carries the tool result back to the model.
	require.Len(t, llmClient.requests, 2)
	require.Len(t, llmClient.requests[1].Messages, 4)
}

func TestAgentProcess_BuiltinToolErrorIsReported(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("call_1", "echo", `{"fail":true}`),
		contentResponse("ok"),
	}}
	a := New(context.Background(), llmClient, testConfig(), tools.NewToolManager(echoTool{}), nil)

	res, err := a.Process(context.Background(), Request{Prompt: "go"})
	require.NoError(t, err)
	require.Equal(t, "Error: echo refused", res.Transcript[3].Content)
}

func TestAgentProcess_UnknownTool(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("call_1", "nope", `{}`),
		contentResponse("ok"),
	}}
	a := New(context.Background(), llmClient, testConfig(), nil, nil)

	res, err := a.Process(context.Background(), Request{Prompt: "go"})
	require.NoError(t, err)
	require.Equal(t, "Error: unknown tool nope", res.Transcript[3].Content)
}

func TestAgentProcess_LLMRequestsMCPTool_Success(t *testing.T) {
	toolName := "get_weather"
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("call_123", toolName, `{"location": "London"}`),
		contentResponse("Based on the weather tool, it's sunny in London."),
	}}
	mockClient := &mockMCPClient{
		ListToolsFunc: func(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
			return &mcp.ListToolsResult{Tools: []mcp.Tool{
				{Name: toolName, Description: "Gets weather", RawInputSchema: json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"}}}`)},
			}}, nil
		},
		CallToolFunc: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			require.Equal(t, toolName, request.Params.Name)
			require.Equal(t, map[string]any{"location": "London"}, request.Params.Arguments)
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "The weather in London is sunny."}},
			}, nil
		},
	}

	a := New(context.Background(), llmClient, testConfig(), nil, nil)
	require.NoError(t, a.registerMCPClient(context.Background(), "weather", mockClient))
	require.Equal(t, []string{toolName}, a.Tools())

	res, err := a.Process(context.Background(), Request{Prompt: "What's the weather in London?"})
	require.NoError(t, err)
	require.Equal(t, "Based on the weather tool, it's sunny in London.", res.Content)
	require.Equal(t, "The weather in London is sunny.", res.Transcript[3].Content)

	require.NoError(t, a.Close())
	require.True(t, mockClient.closed)
}

func TestAgentProcess_LLMRequestsMCPTool_MCPClientFails(t *testing.T) {
	toolName := "broken_tool"
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("call_456", toolName, `{}`),
		contentResponse("Sorry, the tool failed."),
	}}
	mockClient := &mockMCPClient{
		ListToolsFunc: func(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
			return &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: toolName}}}, nil
		},
		CallToolFunc: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("MCP tool execution failed badly.")
		},
	}

	a := New(context.Background(), llmClient, testConfig(), nil, nil)
	require.NoError(t, a.registerMCPClient(context.Background(), "broken", mockClient))

	res, err := a.Process(context.Background(), Request{Prompt: "Use the broken tool"})
	require.NoError(t, err)
	require.Equal(t, "Sorry, the tool failed.", res.Content)
	require.Equal(t, "Error: MCP tool execution failed badly.", res.Transcript[3].Content)
}

func TestRegisterMCPClient_BuiltinWinsNameClash(t *testing.T) {
	mockClient := &mockMCPClient{
		ListToolsFunc: func(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
			return &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "echo"}, {Name: "read_file"}}}, nil
		},
	}
	a := New(context.Background(), &mockLLM{}, testConfig(), tools.NewToolManager(echoTool{}), nil)
	require.NoError(t, a.registerMCPClient(context.Background(), "fs", mockClient))
	require.Equal(t, []string{"echo", "read_file"}, a.Tools())
	require.NotContains(t, a.mcpTools, "echo")
}

func TestRegisterMCPClient_InitializeFails(t *testing.T) {
	mockClient := &mockMCPClient{
		InitializeFunc: func(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
			return nil, errors.New("handshake failed")
		},
	}
	a := New(context.Background(), &mockLLM{}, testConfig(), nil, nil)
	require.EqualError(t, a.registerMCPClient(context.Background(), "x", mockClient), "handshake failed")
	require.Empty(t, a.mcpClients)
}

func TestNew_SkipsBadServers(t *testing.T) {
	cfg := testConfig()
	cfg.MCPServers = []config.MCPServerConfig{
		{Name: "untyped"},
		{Name: "weird", Type: "carrier-pigeon"},
	}
	a := New(context.Background(), &mockLLM{}, cfg, nil, nil)
	require.Empty(t, a.mcpClients)
	require.Empty(t, a.Tools())
}

func TestAgentProcess_LLMError(t *testing.T) {
	a := New(context.Background(), &mockLLM{err: context.DeadlineExceeded}, testConfig(), nil, nil)
	res, err := a.Process(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, res.Transcript, 2)
}

func TestAgentProcess_MaxTurns(t *testing.T) {
	cfg := testConfig()
	cfg.Run.MaxTurns = 2
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{
		toolCallResponse("c1", "echo", `{}`),
		toolCallResponse("c2", "echo", `{}`),
		contentResponse("never reached"),
	}}
	a := New(context.Background(), llmClient, cfg, tools.NewToolManager(echoTool{}), nil)

	_, err := a.Process(context.Background(), Request{Prompt: "loop"})
	require.ErrorIs(t, err, ErrMaxTurns)
	require.Len(t, llmClient.requests, 2)
}

func TestAgentProcess_CanceledContext(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{contentResponse("x")}}
	a := New(context.Background(), llmClient, testConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Process(ctx, Request{Prompt: "hi"})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, llmClient.requests)
}

func TestAgentProcess_ContinueTranscript(t *testing.T) {
	llmClient := &mockLLM{calls: []openai.ChatCompletionResponse{contentResponse("resumed")}}
	a := New(context.Background(), llmClient, testConfig(), nil, nil)

	previous := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "work on p1-001.md"},
		{Role: openai.ChatMessageRoleAssistant, Content: "halfway"},
	}
	res, err := a.Process(context.Background(), Request{Prompt: "continue", Transcript: previous})
	require.NoError(t, err)

	sent := llmClient.requests[0].Messages
	require.Len(t, sent, 3)
	require.Equal(t, "work on p1-001.md", sent[0].Content)
	require.Equal(t, "continue", sent[2].Content)
	require.Len(t, res.Transcript, 4)
}

func TestDescribeArgs(t *testing.T) {
	require.Equal(t, "a.go", describeArgs(`{"file_path":"a.go","path":"b"}`))
	require.Equal(t, "ls -la", describeArgs(`{"command":"ls -la"}`))
	require.Equal(t, "p1-001.md -> review", describeArgs(`{"issue":"p1-001.md","status":"review"}`))
	require.Equal(t, "", describeArgs(`{"other":1}`))
	require.Equal(t, "", describeArgs(`not json`))
}

func TestToolSchema(t *testing.T) {
	require.JSONEq(t, `{"type":"object","properties":{}}`, string(toolSchema(mcp.Tool{Name: "x"})))
	require.JSONEq(t, `{"type":"object"}`, string(toolSchema(mcp.Tool{RawInputSchema: json.RawMessage(`{"type":"object"}`)})))

	withInput := mcp.Tool{InputSchema: mcp.ToolInputSchema{Type: "object", Required: []string{"q"}}}
	require.Contains(t, string(toolSchema(withInput)), `"required":["q"]`)
}
