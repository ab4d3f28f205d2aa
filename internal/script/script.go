// Package script turns a call brief into a plain-text call script using a
// language model.
package script

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"call-agent/internal/apperr"
)

const opGenerate = "script.generate"

// Brief is the input of a script generation. CustomerName, Goal and Product
// are required.
type Brief struct {
	CustomerName string `json:"customerName"`
	Goal         string `json:"goal"`
	Product      string `json:"product"`
	Tone         string `json:"tone,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func (b Brief) Validate() error {
	switch {
	case strings.TrimSpace(b.CustomerName) == "":
		return apperr.Validation(opGenerate, "customer_name_required")
	case strings.TrimSpace(b.Goal) == "":
		return apperr.Validation(opGenerate, "goal_required")
	case strings.TrimSpace(b.Product) == "":
		return apperr.Validation(opGenerate, "product_required")
	}
	return nil
}

// Generator is the language-model collaborator.
type Generator interface {
	Generate(ctx context.Context, system, user string) (Reply, error)
}

// Reply is a model response. Providers fill OutputText when they return a
// flattened text, Output when the text arrives as content fragments.
type Reply struct {
	OutputText string
	Output     []ReplyItem
}

type ReplyItem struct {
	Content []ReplyFragment
}

type ReplyFragment struct {
	Type string
	Text string
}

// Text extracts the plain text of the reply.
func (r Reply) Text() string {
	if s := strings.TrimSpace(r.OutputText); s != "" {
		return s
	}
	var b strings.Builder
	for _, item := range r.Output {
		for _, frag := range item.Content {
			b.WriteString(frag.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

type Client struct {
	gen Generator
	log *slog.Logger
}

func NewClient(gen Generator, log *slog.Logger) (*Client, error) {
	if gen == nil {
		return nil, errors.New("script: generator must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{gen: gen, log: log}, nil
}

// Generate validates the brief, asks the model for a script and returns its
// text with surrounding whitespace trimmed.
func (c *Client) Generate(ctx context.Context, b Brief) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}

	reply, err := c.gen.Generate(ctx, systemInstruction, buildUserPrompt(b))
	if err != nil {
		c.log.Error("script generation failed", "err", err)
		return "", apperr.Provider(opGenerate, err)
	}

	text := reply.Text()
	if text == "" {
		c.log.Warn("script generation returned no text")
		return "", apperr.EmptyGeneration(opGenerate)
	}
	c.log.Debug("script generated", "chars", len(text))
	return text, nil
}
