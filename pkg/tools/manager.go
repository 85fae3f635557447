package tools

import (
	"fmt"
	"sort"
)

// ToolManager manages the available tools
type ToolManager struct {
	tools map[string]Tool
}

// NewToolManager creates a new ToolManager
func NewToolManager(tools ...Tool) *ToolManager {
	m := &ToolManager{
		tools: make(map[string]Tool),
	}
	for _, t := range tools {
		m.RegisterTool(t)
	}
	return m
}

// List returns all registered tools ordered by name
func (m *ToolManager) List() []Tool {
	if m == nil {
		return nil
	}
	ts := make([]Tool, 0, len(m.tools))
	for _, t := range m.tools {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Name() < ts[j].Name() })
	return ts
}

// RegisterTool registers a new tool, replacing any tool with the same name
func (m *ToolManager) RegisterTool(tool Tool) {
	m.tools[tool.Name()] = tool
}

// GetTool retrieves a tool by name
func (m *ToolManager) GetTool(name string) (Tool, error) {
	if m == nil {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	tool, ok := m.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}
