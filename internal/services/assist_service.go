package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/llm"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/utils"
)

const (
	noKeysSuggestion      = "// No API keys configured. Please add your AI provider API keys in the API Key Manager to use AI assistance."
	unavailableSuggestion = "// AI assistance temporarily unavailable. Please try again later."

	defaultAnalysisConfidence = 0.6
)

// ChatRouter sends chat requests through a user's provider keys.
type ChatRouter interface {
	Chat(ctx context.Context, userID uuid.UUID, requestType string, req llm.ChatRequest) (llm.ChatResponse, error)
	UsableKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
}

type AssistMode string

const (
	AssistCompletion  AssistMode = "completion"
	AssistRefactor    AssistMode = "refactor"
	AssistExplanation AssistMode = "explanation"
	AssistSuggestion  AssistMode = "suggestion"
	AssistAnalysis    AssistMode = "analysis"
)

type AssistInput struct {
	FileContent string
	Prompt      string
	Language    string
	Line        int
	Column      int
}

type AssistResult struct {
	Suggestion string
	Confidence float64
	Mode       AssistMode
}

type AssistService interface {
	// Assist never fails on provider problems; it answers with a fixed
	// zero-confidence suggestion instead.
	Assist(ctx context.Context, userID uuid.UUID, in *AssistInput) (*AssistResult, error)
}

type assistService struct {
	router ChatRouter
}

func NewAssistService(router ChatRouter) AssistService {
	return &assistService{router: router}
}

var _ AssistService = (*assistService)(nil)

// ModeFor picks the assistance mode from prompt keywords.
func ModeFor(prompt string) AssistMode {
	p := strings.ToLower(prompt)
	switch {
	case strings.TrimSpace(p) == "":
		return AssistAnalysis
	case strings.Contains(p, "complete"), strings.Contains(p, "finish"):
		return AssistCompletion
	case strings.Contains(p, "refactor"), strings.Contains(p, "improve"):
		return AssistRefactor
	case strings.Contains(p, "explain"), strings.Contains(p, "what"):
		return AssistExplanation
	default:
		return AssistSuggestion
	}
}

var modeConfidence = map[AssistMode]float64{
	AssistCompletion:  0.7,
	AssistRefactor:    0.8,
	AssistExplanation: 0.9,
	AssistSuggestion:  0.8,
}

func (s *assistService) Assist(ctx context.Context, userID uuid.UUID, in *AssistInput) (*AssistResult, error) {
	lang := in.Language
	if lang == "" {
		lang = "javascript"
	}
	mode := ModeFor(in.Prompt)
	req := assistRequest(mode, lang, in)

	resp, err := s.router.Chat(ctx, userID, llm.RequestAssist, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, llm.ErrNoAPIKeys) {
			logger.L().Info("assist without api keys", zap.String("user_id", userID.String()))
			return &AssistResult{Suggestion: noKeysSuggestion, Mode: mode}, nil
		}
		logger.L().Warn("assist failed", zap.String("user_id", userID.String()), zap.String("mode", string(mode)), zap.Error(err))
		return &AssistResult{Suggestion: unavailableSuggestion, Mode: mode}, nil
	}

	text := strings.TrimSpace(resp.Text)
	if mode == AssistAnalysis {
		suggestion, confidence := firstAnalysisSuggestion(text)
		return &AssistResult{Suggestion: suggestion, Confidence: confidence, Mode: mode}, nil
	}
	return &AssistResult{Suggestion: utils.StripCodeFence(text), Confidence: modeConfidence[mode], Mode: mode}, nil
}

func assistRequest(mode AssistMode, lang string, in *AssistInput) llm.ChatRequest {
	switch mode {
	case AssistCompletion:
		return llm.ChatRequest{
			SystemPrompt: fmt.Sprintf("You are an expert %s developer. Complete the given code. Return only the completion without markdown formatting.", lang),
			UserPrompt:   fmt.Sprintf("Complete this %s code:\n\n%s", lang, in.FileContent),
			Temperature:  0.3,
		}
	case AssistRefactor:
		return llm.ChatRequest{
			SystemPrompt: fmt.Sprintf("You are a senior %s developer. Refactor the provided code with general improvements. Return only the refactored code without markdown formatting.", lang),
			UserPrompt:   fmt.Sprintf("Refactor this %s code:\n\n%s", lang, in.FileContent),
			Temperature:  0.2,
		}
	case AssistExplanation:
		return llm.ChatRequest{
			SystemPrompt: fmt.Sprintf("You are a senior %s developer. Explain the provided code in medium detail. Focus on what the code does, how it works, and any important concepts.", lang),
			UserPrompt:   fmt.Sprintf("Explain this %s code:\n\n%s\n\nQuestion: %s", lang, in.FileContent, in.Prompt),
			Temperature:  0.1,
		}
	case AssistAnalysis:
		return llm.ChatRequest{
			SystemPrompt: fmt.Sprintf(`You are a senior %s developer and code reviewer. Analyze the provided code and return only a JSON object:
{"suggestions":[{"code":"improved code","explanation":"why","confidence":0.8,"line_start":1,"line_end":5}]}`, lang),
			UserPrompt:  fmt.Sprintf("Analyze this %s code (cursor at line %d, column %d):\n\n%s", lang, in.Line, in.Column, in.FileContent),
			Temperature: 0.1,
		}
	default:
		return llm.ChatRequest{
			SystemPrompt: fmt.Sprintf("You are an expert %s developer. Provide helpful, accurate code suggestions. Focus on best practices, performance, and maintainability. Return only the code suggestion without markdown formatting.", lang),
			UserPrompt:   fmt.Sprintf("Code context:\n%s\n\nUser request: %s", in.FileContent, in.Prompt),
			Temperature:  0.3,
		}
	}
}

type analysis struct {
	Suggestions []struct {
		Code       string   `json:"code"`
		Confidence *float64 `json:"confidence"`
	} `json:"suggestions"`
}

// firstAnalysisSuggestion returns the first suggestion of a JSON analysis, or
// the raw text when the model did not answer with JSON.
func firstAnalysisSuggestion(text string) (string, float64) {
	var a analysis
	if err := json.Unmarshal([]byte(utils.StripCodeFence(text)), &a); err != nil || len(a.Suggestions) == 0 {
		return utils.StripCodeFence(text), defaultAnalysisConfidence
	}
	first := a.Suggestions[0]
	if first.Confidence == nil {
		return first.Code, defaultAnalysisConfidence
	}
	return first.Code, *first.Confidence
}
