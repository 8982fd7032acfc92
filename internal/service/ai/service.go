package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/zhouzirui/convosense/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/convosense/backend/internal/metrics"
	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
)

// Operation names used in logs and metrics.
const (
	OpSentiment = "sentiment"
	OpTranslate = "translate"
)

var (
	ErrEmptyOutput            = errors.New("ai returned empty output")
	ErrTranslationUnavailable = errors.New("translation backend not configured")
)

// CompletionRequest is one structured-output prompt.
type CompletionRequest struct {
	Name   string
	System string
	User   string
	Schema map[string]any
}

// Completer sends a prompt to a language model and returns the raw reply text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SentimentResult is the classifier verdict for one message.
type SentimentResult struct {
	Sentiment  chat.Sentiment `json:"sentiment"`
	Confidence float64        `json:"confidence"`
}

// TranslateRequest carries display labels, not codes, for both languages.
type TranslateRequest struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
}

// Service exposes sentiment classification and annotated translation.
// With a nil Completer it runs offline: sentiment falls back to keyword
// heuristics and translation reports ErrTranslationUnavailable.
type Service struct {
	completer Completer
	timeout   time.Duration
	validate  *validator.Validate
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// Option customizes a Service.
type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a new AI service instance.
func NewService(completer Completer, opts ...Option) *Service {
	s := &Service{
		completer: completer,
		timeout:   30 * time.Second,
		validate:  validator.New(),
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Online reports whether a model backend is configured.
func (s *Service) Online() bool {
	return s.completer != nil
}

// ClassifySentiment labels text as positive, negative, neutral or unknown.
func (s *Service) ClassifySentiment(ctx context.Context, text string) (SentimentResult, error) {
	if !s.Online() {
		decision := sentiment.Analyze(text)
		s.metrics.AIRequest(OpSentiment, nil)
		return SentimentResult{Sentiment: decision.Sentiment, Confidence: decision.Confidence}, nil
	}

	var out sentimentOutput
	err := s.run(ctx, OpSentiment, CompletionRequest{
		Name:   "MessageSentiment",
		System: sentimentSystemPrompt,
		User:   renderPrompt(sentimentUserPrompt, map[string]string{"message": text}),
		Schema: sentimentSchema,
	}, &out)
	if err != nil {
		return SentimentResult{}, err
	}

	return SentimentResult{
		Sentiment:  chat.ParseSentiment(out.Sentiment),
		Confidence: clampConfidence(out.Confidence),
	}, nil
}

// Translate renders text in the target language with cultural annotations.
func (s *Service) Translate(ctx context.Context, req TranslateRequest) (chat.TranslationDetail, error) {
	if !s.Online() {
		s.metrics.AIRequest(OpTranslate, ErrTranslationUnavailable)
		return chat.TranslationDetail{}, ErrTranslationUnavailable
	}

	vars := map[string]string{
		"source": req.SourceLanguage,
		"target": req.TargetLanguage,
		"text":   req.Text,
	}

	var out chat.TranslationDetail
	err := s.run(ctx, OpTranslate, CompletionRequest{
		Name:   "MessageTranslation",
		System: renderPrompt(translateSystemPrompt, vars),
		User:   renderPrompt(translateUserPrompt, vars),
		Schema: translationSchema,
	}, &out)
	if err != nil {
		return chat.TranslationDetail{}, err
	}

	if err := s.validate.Struct(out); err != nil {
		s.log.Warn("translation output failed validation", "error", err.Error(), "target", req.TargetLanguage)
		return chat.TranslationDetail{}, fmt.Errorf("invalid translation output: %w", err)
	}

	out.TranslatedText = strings.TrimSpace(out.TranslatedText)
	out.Source = chat.TranslationSource
	return out, nil
}

func (s *Service) run(ctx context.Context, op string, req CompletionRequest, dst any) (err error) {
	defer func() { s.metrics.AIRequest(op, err) }()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	content, err := s.completer.Complete(ctx, req)
	if err != nil {
		s.log.Warn("ai call failed", "operation", op, "error", err.Error())
		return fmt.Errorf("%s call failed: %w", op, err)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%s: %w", op, ErrEmptyOutput)
	}

	if err := decodeModelJSON(content, dst); err != nil {
		s.log.Warn("ai output parse failed", "operation", op, "error", err.Error())
		return fmt.Errorf("%s output: %w", op, err)
	}

	s.log.Debug("ai call completed", "operation", op, "latency_ms", time.Since(started).Milliseconds())
	return nil
}

type sentimentOutput struct {
	Sentiment  string  `json:"sentiment" jsonschema:"enum=positive,enum=negative,enum=neutral,description=Sentiment of the message"`
	Confidence float64 `json:"confidence" jsonschema:"description=Confidence between 0 and 1"`
}

func clampConfidence(val float64) float64 {
	if val < 0 {
		return 0
	}
	if val > 1 {
		return 1
	}
	return val
}

func renderPrompt(tpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
