package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap/zaptest"
)

type stubCompleter struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.req = req
	return s.resp, s.err
}

func TestCompleteSendsBothMessages(t *testing.T) {
	stub := &stubCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: `[]`}}},
	}}
	c := NewOpenAIClient(stub, "gpt-4o-mini", 512, 0, 1, zaptest.NewLogger(t))

	got, err := c.Complete(context.Background(), core.Prompt{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `[]` {
		t.Errorf("reply = %q", got)
	}
	if len(stub.req.Messages) != 2 || stub.req.Messages[0].Content != "sys" || stub.req.Messages[1].Content != "usr" {
		t.Errorf("messages = %+v", stub.req.Messages)
	}
	if stub.req.Model != "gpt-4o-mini" {
		t.Errorf("model = %s", stub.req.Model)
	}
}

func TestCompleteErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}, true},
		{"bad key", &openai.APIError{HTTPStatusCode: 401, Message: "invalid api key"}, false},
		{"request gateway", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, true},
		{"bad request", &openai.RequestError{HTTPStatusCode: 400, Err: errors.New("invalid")}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIClient(&stubCompleter{err: tt.err}, "m", 1, 0, 1, zaptest.NewLogger(t))
			_, err := c.Complete(context.Background(), core.Prompt{})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := retry.IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestCompleteEmptyChoicesIsRetryable(t *testing.T) {
	c := NewOpenAIClient(&stubCompleter{}, "m", 1, 0, 1, zaptest.NewLogger(t))
	_, err := c.Complete(context.Background(), core.Prompt{})
	if !retry.IsRetryable(err) {
		t.Errorf("err = %v, want retryable", err)
	}
}
