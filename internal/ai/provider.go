package ai

import (
	"context"
	"errors"
)

// ErrNoCompletion is returned by providers that answered without any text.
var ErrNoCompletion = errors.New("provider returned no completion")

// Provider is a text completion backend.
type Provider interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error)
}

// SystemPrompt frames every poem request.
const SystemPrompt = "너는 한국어 삼행시를 짓는 시인이다. 요청한 형식의 세 줄만 답하고 설명은 덧붙이지 않는다."
