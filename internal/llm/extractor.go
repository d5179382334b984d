package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geo-recog/internal/normalizer"
	"github.com/geo-recog/internal/pool"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one chat completion.
const DefaultTimeout = 5 * time.Second

// Extraction is the structured answer of the model.
type Extraction struct {
	Province string   `json:"province,omitempty"`
	City     string   `json:"city,omitempty"`
	Entities []string `json:"entities,omitempty"`
	Analysis string   `json:"analysis,omitempty"`
}

// Extractor asks an LLM, through the endpoint pool, which province and
// city a news text belongs to.
type Extractor struct {
	pool    *pool.Pool
	clients map[int]ChatClient
	prompt  *Prompt
	timeout time.Duration
	logger  *zap.Logger
}

// NewExtractor dials one ChatClient per pool endpoint.
func NewExtractor(p *pool.Pool, dial Dialer, prompt *Prompt, timeout time.Duration, logger *zap.Logger) (*Extractor, error) {
	if p == nil {
		return nil, fmt.Errorf("extractor needs an endpoint pool")
	}
	if prompt == nil {
		return nil, fmt.Errorf("extractor needs a prompt")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clients := make(map[int]ChatClient, p.Size())
	for _, ep := range p.Endpoints() {
		clients[ep.Index] = dial(ep)
	}
	return &Extractor{
		pool:    p,
		clients: clients,
		prompt:  prompt,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// PromptVersion identifies the few-shot prompt in use.
func (e *Extractor) PromptVersion() string { return e.prompt.Version }

// Extract makes exactly one inference attempt. When the answer parses but
// lacks province or city, the partial Extraction is returned together with
// a *MissingFieldError.
func (e *Extractor) Extract(ctx context.Context, text string) (Extraction, error) {
	lease, err := e.pool.Acquire(ctx)
	if err != nil {
		return Extraction{}, err
	}
	defer lease.Release()

	ep := lease.Endpoint()
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	answer, err := e.clients[ep.Index].Complete(callCtx, e.prompt.Messages(text))
	took := time.Since(start)
	if err != nil {
		err = classify(callCtx, err)
		e.logger.Warn("Inference failed",
			zap.Int("endpoint", ep.Index),
			zap.String("kind", Kind(err)),
			zap.Duration("took", took),
			zap.Error(err))
		return Extraction{}, err
	}

	ext, err := ParseAnswer(answer)
	e.logger.Debug("Inference done",
		zap.Int("endpoint", ep.Index),
		zap.Duration("took", took),
		zap.String("province", ext.Province),
		zap.String("city", ext.City),
		zap.String("kind", Kind(err)))
	return ext, err
}

func classify(callCtx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	case errors.Is(err, ErrInferenceFailed):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
}

// ParseAnswer decodes the model's JSON answer. A Markdown code fence around
// the object is tolerated, as is a one-element JSON list.
func ParseAnswer(answer string) (Extraction, error) {
	body := stripFences(answer)
	if strings.HasPrefix(body, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal([]byte(body), &list); err != nil {
			return Extraction{}, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
		}
		if len(list) == 0 {
			return Extraction{}, fmt.Errorf("%w: empty list", ErrMalformedExtraction)
		}
		body = string(list[0])
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}

	ext := Extraction{
		Province: stringField(fields, "province"),
		City:     stringField(fields, "city"),
		Analysis: stringField(fields, "analysis"),
	}
	if raw, ok := fields["entities"]; ok {
		_ = json.Unmarshal(raw, &ext.Entities)
	}

	var missing []string
	if ext.Province == "" {
		missing = append(missing, "province")
	}
	if ext.City == "" {
		missing = append(missing, "city")
	}
	if len(missing) > 0 {
		return ext, &MissingFieldError{Fields: missing}
	}
	return ext, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return normalizer.Canonical(s)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
