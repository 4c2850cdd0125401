package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/llm"
	"github.com/lumnicode/engine/internal/metrics"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/repository"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/progress"
	"github.com/lumnicode/engine/pkg/utils"
)

const (
	TypeGenerate = "ai:generate"

	defaultPollInterval = 2 * time.Second
	generateTimeout     = 30 * time.Minute
	finalizeTimeout     = 5 * time.Second
	maxDescription      = 500
)

// errHalted means the session was stopped or finished elsewhere; the task ends quietly.
var errHalted = errors.New("generation halted")

// GeneratePayload is the payload of ai:generate tasks.
type GeneratePayload struct {
	SessionID string `json:"session_id"`
}

// NewGenerateTask builds the task for one session. Generation is not retried:
// a failed run leaves the session in the error state.
func NewGenerateTask(sessionID uuid.UUID) (*asynq.Task, error) {
	b, err := json.Marshal(GeneratePayload{SessionID: sessionID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerate, b, asynq.MaxRetry(0), asynq.Timeout(generateTimeout)), nil
}

type SessionStore interface {
	GetByID(ctx context.Context, id any, dest *models.GenerationSession) error
	GetStatus(ctx context.Context, sessionID uuid.UUID) (string, error)
	Transition(ctx context.Context, sessionID uuid.UUID, to, errMsg string) (*models.GenerationSession, error)
	UpdateProgress(ctx context.Context, sessionID uuid.UUID, p repository.SessionProgress) error
}

type ProjectStore interface {
	GetByID(ctx context.Context, id any, dest *models.Project) error
	Update(ctx context.Context, obj *models.Project) error
}

// FileWriter creates or overwrites a project file and reports whether it was new.
type FileWriter interface {
	WriteFile(ctx context.Context, projectID uuid.UUID, path, content, message string) (*models.File, bool, error)
}

type Chatter interface {
	Chat(ctx context.Context, userID uuid.UUID, requestType string, req llm.ChatRequest) (llm.ChatResponse, error)
}

type Publisher interface {
	Publish(ctx context.Context, sessionID string, u progress.Update) error
}

// GenerateTaskHandler builds a project from a prompt, file by file, reporting
// progress for the session as it goes.
type GenerateTaskHandler struct {
	sessions     SessionStore
	projects     ProjectStore
	files        FileWriter
	chat         Chatter
	pub          Publisher
	pollInterval time.Duration
	log          *zap.Logger
}

func NewGenerateTaskHandler(sessions SessionStore, projects ProjectStore, files FileWriter, chat Chatter, pub Publisher, pollInterval time.Duration) *GenerateTaskHandler {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &GenerateTaskHandler{
		sessions:     sessions,
		projects:     projects,
		files:        files,
		chat:         chat,
		pub:          pub,
		pollInterval: pollInterval,
		log:          logger.Named("generate"),
	}
}

// PlannedFile is one entry of the model's project plan.
type PlannedFile struct {
	Path        string `json:"path"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description"`
}

type Plan struct {
	Files        []PlannedFile `json:"files"`
	Structure    []PlannedFile `json:"structure"`
	Dependencies []string      `json:"dependencies"`
	Description  string        `json:"description"`
}

// ParsePlan decodes the model's plan, accepting "files" or "structure" for the file list.
func ParsePlan(text string) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(utils.StripCodeFence(text)), &p); err != nil {
		return nil, fmt.Errorf("invalid project plan: %w", err)
	}
	if len(p.Files) == 0 {
		p.Files = p.Structure
	}
	p.Structure = nil
	p.Files = lo.Filter(p.Files, func(f PlannedFile, _ int) bool { return utils.CleanRelPath(f.Path) != "" })
	p.Files = lo.UniqBy(p.Files, func(f PlannedFile) string { return utils.CleanRelPath(f.Path) })
	if len(p.Files) == 0 {
		return nil, errors.New("project plan has no files")
	}
	return &p, nil
}

// run holds the per-session state of one task execution.
type run struct {
	sess    *models.GenerationSession
	project *models.Project
	id      string
	state   repository.SessionProgress
}

func (h *GenerateTaskHandler) HandleGenerate(ctx context.Context, t *asynq.Task) error {
	var p GeneratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.log.Error("invalid generate task payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(p.SessionID)
	if err != nil {
		h.log.Error("invalid session id in task", zap.String("session_id", p.SessionID), zap.Error(err))
		return fmt.Errorf("parse session id: %v: %w", err, asynq.SkipRetry)
	}
	log := h.log.With(zap.String("session_id", id.String()))

	var sess models.GenerationSession
	if err := h.sessions.GetByID(ctx, id, &sess); err != nil {
		log.Error("load session failed", zap.Error(err))
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if sess.Status != models.SessionRunning {
		log.Info("session not running, skipping", zap.String("status", sess.Status))
		return nil
	}

	var project models.Project
	if err := h.projects.GetByID(ctx, sess.ProjectID, &project); err != nil {
		h.fail(ctx, &run{sess: &sess, id: id.String()}, fmt.Errorf("project not found: %w", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	r := &run{sess: &sess, project: &project, id: id.String()}
	log.Info("generation started", zap.String("project_id", project.ID.String()))
	err = h.generate(ctx, r)
	switch {
	case err == nil:
		log.Info("generation completed", zap.Int("files", r.state.CompletedFiles))
		return nil
	case errors.Is(err, errHalted):
		log.Info("generation halted", zap.Int("files", r.state.CompletedFiles))
		return nil
	default:
		h.fail(ctx, r, err)
		return fmt.Errorf("generate session %s: %v: %w", id, err, asynq.SkipRetry)
	}
}

func (h *GenerateTaskHandler) generate(ctx context.Context, r *run) error {
	stack := []string(r.sess.TechStack)

	h.step(ctx, r, 10, "Analyzing requirements and planning project structure...")
	plan, err := h.plan(ctx, r, stack)
	if err != nil {
		return err
	}

	if err := h.checkpoint(ctx, r); err != nil {
		return err
	}
	h.step(ctx, r, 20, "Creating configuration files...")
	written, err := h.writeConfigFiles(ctx, r, stack, plan)
	if err != nil {
		return err
	}

	files := lo.Filter(plan.Files, func(f PlannedFile, _ int) bool {
		return !slices.Contains(written, utils.CleanRelPath(f.Path))
	})
	r.state.TotalFiles = len(files)
	h.step(ctx, r, 30, "Generating application files...")

	for i, pf := range files {
		if err := h.checkpoint(ctx, r); err != nil {
			return err
		}
		content, err := h.fileContent(ctx, r, stack, pf, files)
		if err != nil {
			return fmt.Errorf("generate %s: %w", pf.Path, err)
		}
		f, created, err := h.files.WriteFile(ctx, r.project.ID, pf.Path, content, "generated")
		if err != nil {
			return fmt.Errorf("save %s: %w", pf.Path, err)
		}
		metrics.Global().FilesGenerated.Inc()

		r.state.CompletedFiles = i + 1
		r.state.CurrentFile = f.Path
		r.state.Progress = 30 + r.state.CompletedFiles*60/len(files)
		r.state.CurrentTask = lo.Ternary(created, "Created ", "Updated ") + f.Path
		h.persist(ctx, r)
		h.publish(ctx, r, progress.Update{
			Type:           lo.Ternary(created, progress.TypeFileCreated, progress.TypeFileUpdated),
			Message:        r.state.CurrentTask,
			Progress:       r.state.Progress,
			CurrentFile:    f.Path,
			TotalFiles:     r.state.TotalFiles,
			CompletedFiles: r.state.CompletedFiles,
		})
	}

	if err := h.checkpoint(ctx, r); err != nil {
		return err
	}
	h.step(ctx, r, 90, "Finalizing project...")
	h.finalizeProject(ctx, r, plan, stack)

	if err := h.complete(ctx, r); err != nil {
		return err
	}
	metrics.Global().GenerationSession.WithLabelValues(models.SessionCompleted).Inc()
	msg := fmt.Sprintf("Project generation completed successfully! Generated %d files.", r.state.CompletedFiles+len(written))
	dctx, cancel := detached(ctx)
	defer cancel()
	h.publish(dctx, r, progress.NewUpdate(progress.TypeCompleted, msg, 100))
	return nil
}

// complete marks the session completed. A pause that landed after the last
// checkpoint is waited out before retrying.
func (h *GenerateTaskHandler) complete(ctx context.Context, r *run) error {
	for {
		dctx, cancel := detached(ctx)
		_, err := h.sessions.Transition(dctx, r.sess.ID, models.SessionCompleted, "")
		cancel()
		if err == nil {
			return nil
		}
		if !appErr.IsCode(err, appErr.CodeConflict) {
			return err
		}
		if err := h.checkpoint(ctx, r); err != nil {
			return err
		}
	}
}

// detached outlives a cancelled or expired task context so terminal writes still land.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

func (h *GenerateTaskHandler) plan(ctx context.Context, r *run, stack []string) (*Plan, error) {
	resp, err := h.chat.Chat(ctx, r.sess.UserID, llm.RequestGeneration, llm.ChatRequest{
		SystemPrompt: "You are a senior software architect. Plan the files of a new project and answer with JSON only.",
		UserPrompt: fmt.Sprintf(`Project request: %q
Tech stack: %s

Return a JSON object of this shape and nothing else:
{"files":[{"path":"src/App.tsx","type":"component","description":"..."}],"dependencies":["react"],"description":"Project overview"}`,
			r.sess.Prompt, strings.Join(stack, ", ")),
		MaxTokens:   2000,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	return ParsePlan(resp.Text)
}

// configFile is a model-generated config file with a fixed fallback used when
// the model fails or answers with something unusable.
type configFile struct {
	path     string
	prompt   string
	fallback string
	valid    func([]byte) bool
}

// writeConfigFiles writes package.json and stack-specific config and returns their paths.
func (h *GenerateTaskHandler) writeConfigFiles(ctx context.Context, r *run, stack []string, plan *Plan) ([]string, error) {
	configs := []configFile{{
		path: "package.json",
		prompt: fmt.Sprintf("Create a package.json file for a project with tech stack %s, dependencies %s and description %q. Include scripts and devDependencies. Return only valid JSON.",
			strings.Join(stack, ", "), strings.Join(plan.Dependencies, ", "), r.sess.Prompt),
		fallback: FallbackPackageJSON(r.project.Name, r.sess.Prompt, stack, plan.Dependencies),
		valid:    json.Valid,
	}}
	if hasAny(stack, "vite", "react", "vue") {
		configs = append(configs, configFile{
			path:     lo.Ternary(hasAny(stack, "typescript"), "vite.config.ts", "vite.config.js"),
			prompt:   fmt.Sprintf("Create a vite config file for a %q project using %s. Return only the file contents.", r.sess.Prompt, strings.Join(stack, ", ")),
			fallback: viteConfig(stack),
			valid:    func(b []byte) bool { return bytes.Contains(b, []byte("defineConfig")) },
		})
	}
	if hasAny(stack, "typescript") {
		configs = append(configs, configFile{
			path:     "tsconfig.json",
			prompt:   fmt.Sprintf("Create a tsconfig.json file for a %q project. Return only valid JSON.", r.sess.Prompt),
			fallback: tsconfigJSON,
			valid:    json.Valid,
		})
	}

	var written []string
	for _, c := range configs {
		content := c.fallback
		resp, err := h.chat.Chat(ctx, r.sess.UserID, llm.RequestGeneration, llm.ChatRequest{
			SystemPrompt: "You write project configuration files. Return only the file contents without markdown formatting.",
			UserPrompt:   c.prompt,
			MaxTokens:    1000,
			Temperature:  0.2,
		})
		if err == nil {
			if text := utils.StripCodeFence(resp.Text); c.valid([]byte(text)) {
				content = text
			}
		} else if errors.Is(err, context.Canceled) {
			return nil, err
		} else {
			h.log.Warn("config generation failed, using fallback", zap.String("session_id", r.id), zap.String("path", c.path), zap.Error(err))
		}

		f, created, err := h.files.WriteFile(ctx, r.project.ID, c.path, content, "generated")
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", c.path, err)
		}
		written = append(written, f.Path)
		r.state.CurrentFile = f.Path
		h.publish(ctx, r, progress.Update{
			Type:        lo.Ternary(created, progress.TypeFileCreated, progress.TypeFileUpdated),
			Message:     lo.Ternary(created, "Created ", "Updated ") + f.Path,
			Progress:    r.state.Progress,
			CurrentFile: f.Path,
		})
	}
	return written, nil
}

func (h *GenerateTaskHandler) fileContent(ctx context.Context, r *run, stack []string, pf PlannedFile, all []PlannedFile) (string, error) {
	paths := lo.Map(all, func(f PlannedFile, _ int) string { return f.Path })
	resp, err := h.chat.Chat(ctx, r.sess.UserID, llm.RequestGeneration, llm.ChatRequest{
		SystemPrompt: fmt.Sprintf("You are an expert %s developer. Write complete, working file contents. Return only the file contents without markdown formatting.",
			lo.Ternary(len(stack) > 0, strings.Join(stack, "/"), "software")),
		UserPrompt: fmt.Sprintf("Project request: %q\nTech stack: %s\nProject files: %s\n\nWrite the file %s (%s). Purpose: %s",
			r.sess.Prompt, strings.Join(stack, ", "), strings.Join(paths, ", "), pf.Path, lo.CoalesceOrEmpty(pf.Type, "source"), pf.Description),
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return utils.StripCodeFence(resp.Text) + "\n", nil
}

func (h *GenerateTaskHandler) finalizeProject(ctx context.Context, r *run, plan *Plan, stack []string) {
	desc := strings.TrimSpace(plan.Description)
	if desc == "" {
		desc = r.sess.Prompt
	}
	if len(desc) > maxDescription {
		desc = desc[:maxDescription]
	}
	r.project.Description = desc
	if len(stack) > 0 {
		r.project.TechStack = lo.Uniq(append(slices.Clone([]string(r.project.TechStack)), stack...))
	}
	if err := h.projects.Update(ctx, r.project); err != nil {
		h.log.Warn("update project after generation failed", zap.String("session_id", r.id), zap.Error(err))
	}
}

// checkpoint blocks while the session is paused and returns errHalted once it
// is no longer running.
func (h *GenerateTaskHandler) checkpoint(ctx context.Context, r *run) error {
	for {
		status, err := h.sessions.GetStatus(ctx, r.sess.ID)
		if err != nil {
			return err
		}
		switch status {
		case models.SessionRunning:
			return nil
		case models.SessionPaused:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.pollInterval):
			}
		default:
			return errHalted
		}
	}
}

func (h *GenerateTaskHandler) step(ctx context.Context, r *run, pct int, message string) {
	r.state.Progress = pct
	r.state.CurrentTask = message
	h.persist(ctx, r)
	u := progress.NewUpdate(progress.TypeProgress, message, pct)
	u.TotalFiles = r.state.TotalFiles
	h.publish(ctx, r, u)
}

func (h *GenerateTaskHandler) persist(ctx context.Context, r *run) {
	if err := h.sessions.UpdateProgress(ctx, r.sess.ID, r.state); err != nil {
		h.log.Warn("persist session progress failed", zap.String("session_id", r.id), zap.Error(err))
	}
}

func (h *GenerateTaskHandler) publish(ctx context.Context, r *run, u progress.Update) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	if err := h.pub.Publish(ctx, r.id, u); err != nil {
		h.log.Warn("publish progress failed", zap.String("session_id", r.id), zap.String("type", string(u.Type)), zap.Error(err))
	}
}

func (h *GenerateTaskHandler) fail(ctx context.Context, r *run, cause error) {
	msg := "Generation failed: " + cause.Error()
	h.log.Error("generation failed", zap.String("session_id", r.id), zap.Error(cause))
	ctx, cancel := detached(ctx)
	defer cancel()
	if _, err := h.sessions.Transition(ctx, r.sess.ID, models.SessionError, msg); err != nil {
		if appErr.IsCode(err, appErr.CodeConflict) {
			// stopped while the failing call was in flight
			return
		}
		h.log.Error("mark session failed", zap.String("session_id", r.id), zap.Error(err))
	}
	metrics.Global().GenerationSession.WithLabelValues(models.SessionError).Inc()
	h.publish(ctx, r, progress.NewUpdate(progress.TypeError, msg, r.state.Progress))
}

func hasAny(stack []string, names ...string) bool {
	return lo.SomeBy(stack, func(s string) bool {
		return lo.Contains(names, strings.ToLower(strings.TrimSpace(s)))
	})
}
