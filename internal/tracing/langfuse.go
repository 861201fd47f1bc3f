// Package tracing wires optional Langfuse tracing into chat model calls.
// Tracing is opt-in: without LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY every
// function here is a no-op.
package tracing

import (
	"context"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
)

// defaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Setup builds the Langfuse callback handler from the environment. The
// returned flush function must be called before exit so buffered traces are
// sent. ok is false, and handler and flush are nil, when tracing is not
// configured.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "medchat",
	})
	return handler, flush, true
}

// Enable installs the Langfuse handler globally when configured and returns
// the flush function to defer. It always returns a callable function.
func Enable() (flush func(), ok bool) {
	handler, flush, ok := Setup()
	if !ok {
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}

// StartChatModelRun marks ctx as the start of a chat model run named name so
// that installed handlers observe the Generate or Stream call made with it.
// Models invoked outside a compose graph need this to emit callbacks.
func StartChatModelRun(ctx context.Context, name string) context.Context {
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      "MedChat",
		Component: components.ComponentOfChatModel,
	})
}
