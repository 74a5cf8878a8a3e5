package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/levelup-hq/levelup/internal/handlers"
	"github.com/levelup-hq/levelup/internal/models"
	"github.com/levelup-hq/levelup/internal/services"
)

type llmConfig interface {
	llm(systemPrompt, namePrompt string, logger *slog.Logger) (handlers.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port                string                    `yaml:"port"`
	SystemPrompt        string                    `yaml:"systemPrompt"`
	NameGeneratorPrompt string                    `yaml:"nameGeneratorPrompt"`
	ChatDBPath          string                    `yaml:"chatDBPath"`
	CatalogDSN          string                    `yaml:"catalogDSN"`
	AllowedOrigins      []string                  `yaml:"allowedOrigins"`
	AuthTokens          map[string]authUserConfig `yaml:"authTokens"`
	LLM                 llmConfig                 `yaml:"llm"`
}

type authUserConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Admin bool   `yaml:"admin"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port                string                    `yaml:"port"`
		SystemPrompt        string                    `yaml:"systemPrompt"`
		NameGeneratorPrompt string                    `yaml:"nameGeneratorPrompt"`
		ChatDBPath          string                    `yaml:"chatDBPath"`
		CatalogDSN          string                    `yaml:"catalogDSN"`
		AllowedOrigins      []string                  `yaml:"allowedOrigins"`
		AuthTokens          map[string]authUserConfig `yaml:"authTokens"`
		LLM                 map[string]any            `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.SystemPrompt = rawConfig.SystemPrompt
	c.NameGeneratorPrompt = rawConfig.NameGeneratorPrompt
	c.ChatDBPath = rawConfig.ChatDBPath
	c.CatalogDSN = rawConfig.CatalogDSN
	c.AllowedOrigins = rawConfig.AllowedOrigins
	c.AuthTokens = rawConfig.AuthTokens

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "openai":
		llm = &openAIConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (c config) authUsers() map[string]models.User {
	users := make(map[string]models.User, len(c.AuthTokens))
	for token, user := range c.AuthTokens {
		users[token] = models.User{ID: user.ID, Name: user.Name, Admin: user.Admin}
	}
	return users
}

func (o openAIConfig) llm(systemPrompt, namePrompt string, logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.Model, systemPrompt, namePrompt, logger), nil
}

func (o ollamaConfig) llm(systemPrompt, namePrompt string, _ *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, systemPrompt, namePrompt), nil
}

func (o openRouterConfig) llm(systemPrompt, namePrompt string, logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return services.NewOpenRouter(apiKey, o.Model, systemPrompt, namePrompt, logger), nil
}
