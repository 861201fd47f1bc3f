// Package provider selects and constructs the chat model that writes medical
// answers. MODEL_PROVIDER picks the backend at runtime; each backend reads
// its own native credential env vars.
//
// Supported backends: Groq (the default hosted provider), Ollama, OpenAI,
// Azure OpenAI, Google Gemini, Volcengine Ark.
package provider

import (
	"errors"
)

// ErrConfiguration marks a missing or invalid provider setting. It is fatal
// at startup: the server refuses to listen rather than answer every medical
// question with a fallback message.
var ErrConfiguration = errors.New("provider: configuration error")

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGroq selects the Groq API through its OpenAI-compatible endpoint.
	BackendGroq Backend = "groq"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark model runtime.
	BackendArk Backend = "ark"
)

// Backends lists every supported backend in documentation order.
var Backends = []Backend{BackendGroq, BackendOllama, BackendOpenAI, BackendAzure, BackendGemini, BackendArk}

// GroqBaseURL is Groq's OpenAI-compatible API root.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// ProviderGroq holds Groq settings.
type ProviderGroq struct {
	APIKey string
	Model  string
	// BaseURL overrides GroqBaseURL (tests, proxies).
	BaseURL string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	APIKey string
	Model  string
	// BaseURL selects an OpenAI-compatible gateway. Empty uses api.openai.com.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderGemini holds Google AI Studio settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	APIKey string
	// Model is the Ark endpoint ID (ep-...) or model name.
	Model   string
	BaseURL string
	Region  string
}

// SharedTuning holds generation defaults applied at construction time.
// Per-request options from the answer synthesizer override them.
type SharedTuning struct {
	MaxTokens   int
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is consulted.
type Config struct {
	Backend Backend

	Groq        ProviderGroq
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Gemini      ProviderGemini
	Ark         ProviderArk

	Tuning SharedTuning
}
