package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/comigor/bueller-go/internal/issue"
)

// ErrInvalidConfig reports settings that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is prepended to every environment override, e.g. BUELLER_ISSUES_DIR.
const EnvPrefix = "BUELLER"

// ClientType selects the transport used to reach an MCP server.
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

// Config holds the application configuration
type Config struct {
	LogLevel   string            `mapstructure:"log_level"`
	FAQDir     string            `mapstructure:"faq_dir"`
	Issues     IssuesConfig      `mapstructure:"issues"`
	Run        RunConfig         `mapstructure:"run"`
	LLM        LLMConfig         `mapstructure:"llm"`
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
	History    HistoryConfig     `mapstructure:"history"`
}

// IssuesConfig describes the issue queue on disk and how summaries are cut.
type IssuesConfig struct {
	Dir        string `mapstructure:"dir"`
	OpenDir    string `mapstructure:"open_dir"`
	ReviewDir  string `mapstructure:"review_dir"`
	StuckDir   string `mapstructure:"stuck_dir"`
	LongLimit  int    `mapstructure:"long_limit"`
	ShortLimit int    `mapstructure:"short_limit"`
}

// Layout returns the issue directory layout.
func (c IssuesConfig) Layout() issue.Layout {
	return issue.Layout{Root: c.Dir, Open: c.OpenDir, Review: c.ReviewDir, Stuck: c.StuckDir}
}

// Limits returns the abbreviation limits.
func (c IssuesConfig) Limits() issue.Limits {
	return issue.Limits{Long: c.LongLimit, Short: c.ShortLimit}
}

// RunConfig controls the agent loop.
type RunConfig struct {
	MaxIterations  int    `mapstructure:"max_iterations"`
	MaxTurns       int    `mapstructure:"max_turns"`
	GitCommit      bool   `mapstructure:"git_commit"`
	PromptFile     string `mapstructure:"prompt_file"`
	Continue       bool   `mapstructure:"continue"`
	ContinuePrompt string `mapstructure:"continue_prompt"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// MCPServerConfig describes one MCP tool server the agent connects to.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Headers map[string]string `mapstructure:"headers"`
}

// HistoryConfig locates the agent session database.
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// New returns a viper instance with defaults and environment overrides set.
// Callers may bind flags on it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("config", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("faq_dir", "./faq")
	v.SetDefault("issues.dir", "./issues")
	v.SetDefault("issues.open_dir", string(issue.StatusOpen))
	v.SetDefault("issues.review_dir", string(issue.StatusReview))
	v.SetDefault("issues.stuck_dir", string(issue.StatusStuck))
	v.SetDefault("issues.long_limit", issue.DefaultLimits().Long)
	v.SetDefault("issues.short_limit", issue.DefaultLimits().Short)
	v.SetDefault("run.max_iterations", 25)
	v.SetDefault("run.max_turns", 50)
	v.SetDefault("run.git_commit", true)
	v.SetDefault("run.prompt_file", "")
	v.SetDefault("run.continue", false)
	v.SetDefault("run.continue_prompt", "continue")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("history.db_path", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional YAML config file and unmarshals the merged settings.
// An explicitly configured file must exist; otherwise bueller.yaml in the
// working directory is used when present.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("bueller")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.Issues.LongLimit < 1 || config.Issues.ShortLimit < 1 {
		return nil, fmt.Errorf("%w: issues.long_limit and issues.short_limit must be at least 1, got %d and %d",
			ErrInvalidConfig, config.Issues.LongLimit, config.Issues.ShortLimit)
	}

	if config.Run.PromptFile == "" {
		config.Run.PromptFile = filepath.Join(config.Issues.Dir, "prompt.md")
	}
	if config.History.DBPath == "" {
		config.History.DBPath = defaultHistoryPath()
	}

	return &config, nil
}

func defaultHistoryPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "bueller", "history.db")
	}
	return ".bueller-history.db"
}
