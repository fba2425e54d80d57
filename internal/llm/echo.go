package llm

import (
	"context"
	"fmt"
)

// EchoClient answers locally without any network call.
type EchoClient struct{}

func (EchoClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt := []rune(req.Prompt)
	if len(prompt) > 50 {
		prompt = prompt[:50]
	}
	return fmt.Sprintf("Response from %s: %s...", req.Agent, string(prompt)), nil
}
