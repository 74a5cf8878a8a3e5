package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"slices"

	"github.com/ollama/ollama/api"

	"github.com/levelup-hq/levelup/internal/models"
)

// Ollama provides an implementation of the LLM interface backed by a local or
// remote Ollama server.
type Ollama struct {
	host         string
	model        string
	systemPrompt string
	namePrompt   string

	client *api.Client
}

// NewOllama creates a new Ollama instance with the specified host URL and
// model name. If the provided host URL is invalid, the function will panic.
func NewOllama(host, model, systemPrompt, namePrompt string) Ollama {
	u, err := url.Parse(host)
	if err != nil {
		panic(err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		namePrompt:   namePrompt,
		client:       api.NewClient(u, &http.Client{}),
	}
}

func ollamaMessages(messages []models.Message) []api.Message {
	msgs := make([]api.Message, len(messages))
	for i, msg := range messages {
		msgs[i] = api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return msgs
}

// Chat streams a mentor reply from the Ollama model. The response is streamed
// incrementally through the returned iterator.
func (o Ollama) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := slices.Insert(ollamaMessages(messages), 0, api.Message{
			Role:    "system",
			Content: o.systemPrompt,
		})

		t := true
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if !yield(res.Message.Content, nil) {
				cancel()
			}
			return nil
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}

// GenerateSessionName asks the model for a short display name covering the
// given transcript.
func (o Ollama) GenerateSessionName(ctx context.Context, messages []models.Message) (string, error) {
	msgs := slices.Insert(ollamaMessages(messages), 0, api.Message{
		Role:    "system",
		Content: o.namePrompt,
	})

	f := false
	req := api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   &f,
	}

	var name string
	if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
		name = res.Message.Content
		return nil
	}); err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}

	return cleanSessionName(name), nil
}
