package config

import (
	"fmt"
	"strings"

	"collabbot/internal/domain"
)

type catalogueEntry struct {
	name        string
	role        string
	description string
	engine      domain.Engine
	model       string
}

var defaultCatalogue = []catalogueEntry{
	{
		name:        "openai_gpt4",
		role:        "Advanced Reasoning & Analysis",
		description: "Handles complex reasoning, deep analysis and comprehensive answers",
		engine:      domain.EngineOpenAI,
		model:       "gpt-4o",
	},
	{
		name:        "openai_gpt35",
		role:        "Quick Response & General Tasks",
		description: "Produces fast, general-purpose answers and summaries",
		engine:      domain.EngineOpenAI,
		model:       "gpt-4o-mini",
	},
	{
		name:        "groq_llama",
		role:        "Fast Processing & Code Generation",
		description: "Generates code and iterates quickly on implementation details",
		engine:      domain.EngineGroq,
		model:       "llama-3.3-70b-versatile",
	},
	{
		name:        "deepseek",
		role:        "Code Analysis & Technical Solutions",
		description: "Reviews code, finds defects and proposes technical solutions",
		engine:      domain.EngineDeepSeek,
		model:       "deepseek-chat",
	},
	{
		name:        "xai_grok",
		role:        "Creative Thinking & Real-time Insights",
		description: "Brings unconventional ideas and alternative angles",
		engine:      domain.EngineXAI,
		model:       "grok-2-latest",
	},
	{
		name:        "openrouter_claude",
		role:        "Detailed Writing & Review",
		description: "Writes long-form explanations and reviews drafts for clarity",
		engine:      domain.EngineOpenRouter,
		model:       "anthropic/claude-3.5-sonnet",
	},
	{
		name:        "mistral_large",
		role:        "Multilingual Reasoning",
		description: "Answers across languages and checks reasoning for consistency",
		engine:      domain.EngineMistral,
		model:       "mistral-large-latest",
	},
}

// ResolveAgents turns [[agents]] into domain agents. Without any declared
// agents the default catalogue is enabled for every provider holding an
// API key.
func (c Config) ResolveAgents() ([]domain.Agent, error) {
	if len(c.Agents) == 0 {
		return c.catalogueAgents(), nil
	}

	seen := make(map[string]struct{}, len(c.Agents))
	out := make([]domain.Agent, 0, len(c.Agents))
	for i, ac := range c.Agents {
		name := strings.TrimSpace(ac.Name)
		if name == "" {
			return nil, fmt.Errorf("agents[%d]: empty name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("agents[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		engine := domain.Engine(strings.ToLower(strings.TrimSpace(ac.Engine)))
		if !engine.Valid() {
			return nil, fmt.Errorf("agent %s: unknown engine %q", name, ac.Engine)
		}
		temperature := c.Defaults.Temperature
		if ac.Temperature != nil {
			temperature = *ac.Temperature
		}
		maxTokens := c.Defaults.MaxTokens
		if ac.MaxTokens > 0 {
			maxTokens = ac.MaxTokens
		}
		out = append(out, domain.Agent{
			Name:        name,
			Role:        strings.TrimSpace(ac.Role),
			Description: strings.TrimSpace(ac.Description),
			Engine:      engine,
			Model: domain.ModelParams{
				Name:        strings.TrimSpace(ac.Model),
				Temperature: temperature,
				MaxTokens:   maxTokens,
			},
		})
	}
	return out, nil
}

func (c Config) catalogueAgents() []domain.Agent {
	available := c.AvailableServices()
	out := make([]domain.Agent, 0, len(defaultCatalogue))
	for _, entry := range defaultCatalogue {
		if !available[entry.engine] {
			continue
		}
		out = append(out, domain.Agent{
			Name:        entry.name,
			Role:        entry.role,
			Description: entry.description,
			Engine:      entry.engine,
			Model: domain.ModelParams{
				Name:        entry.model,
				Temperature: c.Defaults.Temperature,
				MaxTokens:   c.Defaults.MaxTokens,
			},
		})
	}
	return out
}
