// internal/producer/llm.go
package producer

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/config"
	"github.com/xkilldash9x/funnel-recon/internal/llmutil"
)

//go:embed instructions.md
var defaultInstructions string

// Instructions returns the built-in instruction contract sent as the system
// prompt.
func Instructions() string { return defaultInstructions }

// LLMProducer asks a text-generation service to map the sanitized page.
type LLMProducer struct {
	client       schemas.LLMClient
	instructions string
	logger       *zap.Logger
	now          func() time.Time
}

// NewLLMProducer wires a producer to client. When cfg names an instructions
// file it replaces the built-in contract.
func NewLLMProducer(client schemas.LLMClient, cfg config.ProducerConfig, logger *zap.Logger) (*LLMProducer, error) {
	if client == nil {
		return nil, fmt.Errorf("llm producer requires a client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	instructions := defaultInstructions
	if cfg.InstructionsFile != "" {
		b, err := os.ReadFile(cfg.InstructionsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read instructions file: %w", err)
		}
		if strings.TrimSpace(string(b)) == "" {
			return nil, fmt.Errorf("instructions file %s is empty", cfg.InstructionsFile)
		}
		instructions = string(b)
	}

	return &LLMProducer{
		client:       client,
		instructions: instructions,
		logger:       logger.Named("producer.llm"),
		now:          time.Now,
	}, nil
}

func (p *LLMProducer) Name() string { return string(config.ProducerLLM) }

// Produce sends the sanitized markup and returns the single JSON document
// found in the response.
func (p *LLMProducer) Produce(ctx context.Context, req Request) (*Output, error) {
	html := req.CleanHTML
	if html == "" {
		html = req.RawHTML
	}

	genReq := schemas.GenerationRequest{
		SystemPrompt: p.systemPrompt(),
		UserPrompt:   fmt.Sprintf("Here is the sanitized HTML for %s:\n\n%s", req.URL, html),
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	}

	p.logger.Info("Requesting selector analysis", zap.String("url", req.URL), zap.Int("html_bytes", len(html)))
	response, err := p.client.Generate(ctx, genReq)
	if err != nil {
		return nil, fmt.Errorf("text generation failed: %w", err)
	}

	doc, err := llmutil.ExtractJSON(response)
	if err != nil {
		p.logger.Warn("Response holds no usable JSON document",
			zap.Error(err),
			zap.String("response_head", llmutil.Truncate(response, 256)),
		)
		return nil, &MalformedOutputError{Raw: llmutil.Truncate(response, maxRawBytes), Err: err}
	}

	return &Output{Document: []byte(doc), Raw: response, Producer: p.Name()}, nil
}

func (p *LLMProducer) systemPrompt() string {
	ts := p.now().UTC().Format(time.RFC3339)
	return strings.TrimRight(p.instructions, "\n") + "\n\nUse \"" + ts + "\" as the timestamp.\n"
}
