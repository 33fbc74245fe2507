package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/model"
)

const maxTitleLen = 30

const contextPromptTemplate = `Use the following context to answer the user's question. If the answer is not in the context, use your general knowledge but mention that it's not in the documents.

CONTEXT:
%s

USER QUESTION: %s`

const titlePromptTemplate = `Generate a very short, 2-4 word title for a chat conversation that begins with this message: "%s". Return ONLY the title text, no quotes or explanation.`

// Retriever supplies retrieval context for a query.
type Retriever interface {
	SearchContext(ctx context.Context, query string) (string, error)
}

// Result is a generation outcome. Degraded marks a provider soft failure
// surfaced as content: still persistable and broadcastable, just not a real
// answer.
type Result struct {
	Text     string
	Degraded bool
}

// GenerationService builds prompts, calls the language-model provider and
// parses its answers. Every reply goes through the retrieval-augmented path;
// provider soft failures come back as values, hard transport failures as
// errors.
type GenerationService struct {
	provider  ai.IProvider
	model     string
	timeout   time.Duration
	retriever Retriever
	titles    *expirable.LRU[string, string]
}

func NewGenerationService(provider ai.IProvider, modelName string, timeout time.Duration, retriever Retriever) *GenerationService {
	return &GenerationService{
		provider:  provider,
		model:     modelName,
		timeout:   timeout,
		retriever: retriever,
		titles:    expirable.NewLRU[string, string](1024, nil, 2*time.Hour),
	}
}

// GenerateReply answers userMessage, augmented with retrieved context when
// the corpus has anything close. The attachment reference is logged and
// ignored for text-only providers, never fatal.
func (s *GenerationService) GenerateReply(ctx context.Context, userMessage, attachmentURL, attachmentType string) (Result, error) {
	logger := logutil.GetLogger(ctx)
	if attachmentURL != "" {
		logger.Info("attachment ignored by text-only provider",
			zap.String("provider", s.provider.Name()),
			zap.String("attachment_type", attachmentType),
		)
	}

	contextText, err := s.retriever.SearchContext(ctx, userMessage)
	if err != nil {
		logger.Warn("context retrieval failed, answering unaugmented", zap.Error(err))
		contextText = ""
	}

	prompt := userMessage
	if contextText != "" {
		prompt = fmt.Sprintf(contextPromptTemplate, contextText, userMessage)
	}

	text, err := s.generate(ctx, prompt)
	if err != nil {
		if ai.IsSoftFailure(err) {
			logger.Warn("generation soft failure", zap.Error(err))
			return Result{Text: softFailureText(err), Degraded: true}, nil
		}
		return Result{}, err
	}
	return Result{Text: text}, nil
}

// GenerateTitle produces a short conversation title from the seed message.
// Any failure falls back to the placeholder title.
func (s *GenerationService) GenerateTitle(ctx context.Context, seed string) string {
	key := cacheKey("title", seed)
	if cached, ok := s.titles.Get(key); ok {
		return cached
	}
	raw, err := s.generate(ctx, fmt.Sprintf(titlePromptTemplate, seed))
	if err != nil {
		logutil.GetLogger(ctx).Warn("title generation failed, using placeholder", zap.Error(err))
		return model.PlaceholderTitle
	}
	title := sanitizeTitle(raw)
	if title == "" {
		return model.PlaceholderTitle
	}
	s.titles.Add(key, title)
	return title
}

func (s *GenerationService) generate(ctx context.Context, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.provider.Generate(ctx, s.model, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", ai.ErrNoChoices
	}
	return text, nil
}

// sanitizeTitle strips quote and emphasis characters and truncates to 30
// characters with an ellipsis marker.
func sanitizeTitle(raw string) string {
	title := strings.ReplaceAll(raw, `"`, "")
	title = strings.ReplaceAll(title, "*", "")
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen-3]) + "..."
	}
	return title
}

func softFailureText(err error) string {
	var statusErr *ai.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Error from AI provider: %s", statusErr.Body)
	case errors.Is(err, ai.ErrNoChoices):
		return "No response from AI."
	case errors.Is(err, ai.ErrBadResponse):
		return fmt.Sprintf("Error parsing AI response: %v", err)
	case errors.Is(err, ai.ErrUnavailable):
		return "Error: AI provider is not configured."
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

func cacheKey(feature, text string) string {
	hash := sha256.Sum256([]byte(text))
	return feature + ":" + hex.EncodeToString(hash[:])
}
