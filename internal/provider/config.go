package provider

import (
	"fmt"
	"strings"
)

// Validate checks that every setting the selected backend needs is present.
// Errors wrap ErrConfiguration and name the env var to set.
func (c *Config) Validate() error {
	missing := func(envVar string) error {
		return fmt.Errorf("%w: %s is required for %s backend", ErrConfiguration, envVar, c.Backend)
	}

	switch c.Backend {
	case BackendGroq:
		if c.Groq.APIKey == "" {
			return missing("GROQ_API_KEY")
		}
		if c.Groq.Model == "" {
			return missing("GROQ_MODEL")
		}
	case BackendOllama:
		if c.Ollama.Host == "" {
			return missing("OLLAMA_HOST")
		}
		if c.Ollama.Model == "" {
			return missing("OLLAMA_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing("OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return missing("OPENAI_MODEL")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return missing("AZURE_OPENAI_API_KEY")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return missing("AZURE_OPENAI_ENDPOINT")
		}
		if c.AzureOpenAI.Deployment == "" {
			return missing("AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return missing("GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return missing("GEMINI_MODEL")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return missing("ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return missing("ARK_MODEL")
		}
	default:
		return fmt.Errorf("%w: unknown backend %q, valid values: groq, ollama, openai, azure, gemini, ark", ErrConfiguration, c.Backend)
	}

	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return fmt.Errorf("%w: MODEL_TEMPERATURE must be within [0, 2], got %v", ErrConfiguration, c.Tuning.Temperature)
	}
	return nil
}

// ModelName returns the model, deployment or endpoint ID for the selected
// backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGroq:
		return c.Groq.Model
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	}
	return ""
}

// AcceptsSampling reports whether the selected model accepts temperature and
// max-token overrides. Azure o-series and codex deployments reject them.
func (c *Config) AcceptsSampling() bool {
	return c.Backend != BackendAzure || !isAzureReasoningModel(c.AzureOpenAI.Deployment)
}

// azureReasoningPrefixes identify Azure deployments of reasoning models.
var azureReasoningPrefixes = []string{"o1", "o3", "o4", "codex"}

// isAzureReasoningModel reports whether deployment names a reasoning model.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, p := range azureReasoningPrefixes {
		if strings.HasPrefix(d, p) {
			return true
		}
	}
	return false
}
