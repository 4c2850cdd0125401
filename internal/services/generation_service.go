package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/llm"
	"github.com/lumnicode/engine/internal/metrics"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/queue/tasks"
	"github.com/lumnicode/engine/internal/realtime"
	"github.com/lumnicode/engine/internal/repository"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/progress"
)

const historyLimit = 50

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type GenerationService interface {
	realtime.SessionControl

	StartGeneration(ctx context.Context, projectID, userID uuid.UUID, input *StartGenerationInput) (*models.GenerationSession, error)
	History(ctx context.Context, projectID, userID uuid.UUID) ([]models.GenerationSession, error)
	// Providers lists the providers the user holds a usable key for.
	Providers(ctx context.Context, userID uuid.UUID) ([]llm.ProviderInfo, error)
}

type StartGenerationInput struct {
	Prompt    string
	TechStack []string
}

type generationService struct {
	projectRepo repository.ProjectRepository
	sessionRepo repository.SessionRepository
	queue       Enqueuer
	pub         realtime.Publisher
	router      ChatRouter
}

func NewGenerationService(projectRepo repository.ProjectRepository, sessionRepo repository.SessionRepository, queue Enqueuer, pub realtime.Publisher, router ChatRouter) GenerationService {
	return &generationService{projectRepo: projectRepo, sessionRepo: sessionRepo, queue: queue, pub: pub, router: router}
}

var _ GenerationService = (*generationService)(nil)

func (s *generationService) StartGeneration(ctx context.Context, projectID, userID uuid.UUID, input *StartGenerationInput) (*models.GenerationSession, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, appErr.New(appErr.CodeInvalid, "prompt is required")
	}
	var p models.Project
	if err := s.projectRepo.GetOwned(ctx, projectID, userID, &p); err != nil {
		return nil, err
	}

	var active models.GenerationSession
	err := s.sessionRepo.GetActiveByProject(ctx, projectID, &active)
	if err == nil {
		return nil, appErr.New(appErr.CodeConflict, "a generation is already in progress for this project").
			WithMeta("session_id", active.ID.String())
	}
	if !appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, err
	}

	stack := lo.Compact(lo.Map(input.TechStack, func(t string, _ int) string { return strings.TrimSpace(t) }))
	if len(stack) == 0 {
		stack = []string(p.TechStack)
	}
	sess := &models.GenerationSession{
		ProjectID: projectID,
		UserID:    userID,
		Prompt:    prompt,
		TechStack: stack,
		Status:    models.SessionRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		if appErr.IsCode(err, appErr.CodeConflict) {
			return nil, appErr.Wrap(err, appErr.CodeConflict, "a generation is already in progress for this project")
		}
		return nil, err
	}

	task, err := tasks.NewGenerateTask(sess.ID)
	if err == nil {
		_, err = s.queue.EnqueueContext(ctx, task)
	}
	if err != nil {
		logger.L().Error("enqueue generate task failed", zap.String("session_id", sess.ID.String()), zap.Error(err))
		if _, terr := s.sessionRepo.Transition(ctx, sess.ID, models.SessionError, "could not queue generation"); terr != nil {
			logger.L().Error("mark session failed", zap.String("session_id", sess.ID.String()), zap.Error(terr))
		}
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "enqueue generation failed")
	}

	s.publish(ctx, sess.ID, progress.NewUpdate(progress.TypeProgress, "Starting AI generation...", 0))
	logger.L().Info("generation started",
		zap.String("session_id", sess.ID.String()), zap.String("project_id", projectID.String()), zap.String("user_id", userID.String()))
	return sess, nil
}

// GetSession answers 404 for unknown sessions and 403 for other users' sessions.
func (s *generationService) GetSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error) {
	var sess models.GenerationSession
	if err := s.sessionRepo.GetByID(ctx, sessionID, &sess); err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, appErr.New(appErr.CodeForbidden, "session belongs to another user")
	}
	return &sess, nil
}

func (s *generationService) StopSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error) {
	sess, err := s.control(ctx, sessionID, userID, models.SessionStopped)
	if err != nil {
		return nil, err
	}
	metrics.Global().GenerationSession.WithLabelValues(models.SessionStopped).Inc()
	s.publish(ctx, sessionID, progress.NewUpdate(progress.TypeStopped, "Generation stopped by user", sess.Progress))
	return sess, nil
}

func (s *generationService) PauseSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error) {
	sess, err := s.control(ctx, sessionID, userID, models.SessionPaused)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, sessionID, progress.NewUpdate(progress.TypePaused, "Generation paused", sess.Progress))
	return sess, nil
}

func (s *generationService) ResumeSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error) {
	sess, err := s.control(ctx, sessionID, userID, models.SessionRunning)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, sessionID, progress.NewUpdate(progress.TypeResumed, "Generation resumed", sess.Progress))
	return sess, nil
}

func (s *generationService) control(ctx context.Context, sessionID, userID uuid.UUID, to string) (*models.GenerationSession, error) {
	if _, err := s.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	sess, err := s.sessionRepo.Transition(ctx, sessionID, to, "")
	if err != nil {
		return nil, err
	}
	logger.L().Info("generation session changed",
		zap.String("session_id", sessionID.String()), zap.String("status", to), zap.String("user_id", userID.String()))
	return sess, nil
}

func (s *generationService) History(ctx context.Context, projectID, userID uuid.UUID) ([]models.GenerationSession, error) {
	var p models.Project
	if err := s.projectRepo.GetOwned(ctx, projectID, userID, &p); err != nil {
		return nil, err
	}
	return s.sessionRepo.ListByProject(ctx, projectID, historyLimit)
}

func (s *generationService) Providers(ctx context.Context, userID uuid.UUID) ([]llm.ProviderInfo, error) {
	keys, err := s.router.UsableKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := lo.Uniq(lo.Map(keys, func(k models.APIKey, _ int) string { return k.Provider }))
	return lo.FilterMap(names, func(n string, _ int) (llm.ProviderInfo, bool) { return llm.Lookup(n) }), nil
}

func (s *generationService) publish(ctx context.Context, sessionID uuid.UUID, u progress.Update) {
	if err := s.pub.Publish(ctx, sessionID.String(), u); err != nil {
		logger.L().Warn("publish progress failed",
			zap.String("session_id", sessionID.String()), zap.String("type", string(u.Type)), zap.Error(err))
	}
}
