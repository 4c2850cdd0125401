package services

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/lumnicode/engine/internal/llm"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/repository"
	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/progress"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

// fill copies src into dest when the expectation returned an object.
func fill[T any](args mock.Arguments, idx int, dest *T) {
	if args.Error(0) == nil && args.Get(idx) != nil {
		*dest = *args.Get(idx).(*T)
	}
}

type mockBase[T any] struct {
	mock.Mock
}

func (m *mockBase[T]) Create(ctx context.Context, obj *T) error {
	return m.Called(ctx, obj).Error(0)
}

func (m *mockBase[T]) GetByID(ctx context.Context, id any, dest *T) error {
	args := m.Called(ctx, id, dest)
	fill(args, 1, dest)
	return args.Error(0)
}

func (m *mockBase[T]) Update(ctx context.Context, obj *T) error {
	return m.Called(ctx, obj).Error(0)
}

func (m *mockBase[T]) Delete(ctx context.Context, id any) error {
	return m.Called(ctx, id).Error(0)
}

type mockUserRepository struct {
	mockBase[models.User]
}

func (m *mockUserRepository) GetByClerkID(ctx context.Context, clerkID string, dest *models.User) error {
	args := m.Called(ctx, clerkID, dest)
	fill(args, 1, dest)
	return args.Error(0)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string, dest *models.User) error {
	args := m.Called(ctx, email, dest)
	fill(args, 1, dest)
	return args.Error(0)
}

func (m *mockUserRepository) EnsureByClerkID(ctx context.Context, u *models.User) error {
	args := m.Called(ctx, u)
	if args.Error(0) == nil && u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return args.Error(0)
}

type mockProjectRepository struct {
	mockBase[models.Project]
}

func (m *mockProjectRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, f repository.ProjectFilter) ([]models.Project, int64, error) {
	args := m.Called(ctx, ownerID, f)
	out, _ := args.Get(0).([]models.Project)
	return out, args.Get(1).(int64), args.Error(2)
}

func (m *mockProjectRepository) GetOwned(ctx context.Context, projectID, ownerID uuid.UUID, dest *models.Project) error {
	args := m.Called(ctx, projectID, ownerID, dest)
	fill(args, 1, dest)
	return args.Error(0)
}

func (m *mockProjectRepository) Touch(ctx context.Context, projectID uuid.UUID, at time.Time) error {
	return m.Called(ctx, projectID, at).Error(0)
}

type mockFileRepository struct {
	mockBase[models.File]
}

func (m *mockFileRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.File, error) {
	args := m.Called(ctx, projectID)
	out, _ := args.Get(0).([]models.File)
	return out, args.Error(1)
}

func (m *mockFileRepository) GetByPath(ctx context.Context, projectID uuid.UUID, path string, dest *models.File) error {
	args := m.Called(ctx, projectID, path, dest)
	fill(args, 1, dest)
	return args.Error(0)
}

func (m *mockFileRepository) SaveWithVersion(ctx context.Context, f *models.File, message string) (*models.FileVersion, error) {
	args := m.Called(ctx, f, message)
	if args.Error(1) == nil && f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	v, _ := args.Get(0).(*models.FileVersion)
	return v, args.Error(1)
}

func (m *mockFileRepository) ListVersions(ctx context.Context, fileID uuid.UUID) ([]models.FileVersion, error) {
	args := m.Called(ctx, fileID)
	out, _ := args.Get(0).([]models.FileVersion)
	return out, args.Error(1)
}

func (m *mockFileRepository) DeleteByProject(ctx context.Context, projectID uuid.UUID) error {
	return m.Called(ctx, projectID).Error(0)
}

type mockSnapshotRepository struct {
	mockBase[models.ProjectSnapshot]
}

func (m *mockSnapshotRepository) CreateFromProject(ctx context.Context, s *models.ProjectSnapshot) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSnapshotRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectSnapshot, error) {
	args := m.Called(ctx, projectID)
	out, _ := args.Get(0).([]models.ProjectSnapshot)
	return out, args.Error(1)
}

func (m *mockSnapshotRepository) GetWithFiles(ctx context.Context, snapshotID uuid.UUID, dest *models.ProjectSnapshot) error {
	args := m.Called(ctx, snapshotID, dest)
	fill(args, 1, dest)
	return args.Error(0)
}

func (m *mockSnapshotRepository) Restore(ctx context.Context, s *models.ProjectSnapshot) ([]models.File, error) {
	args := m.Called(ctx, s)
	out, _ := args.Get(0).([]models.File)
	return out, args.Error(1)
}

type mockSessionRepository struct {
	mockBase[models.GenerationSession]
}

func (m *mockSessionRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]models.GenerationSession, error) {
	args := m.Called(ctx, projectID, limit)
	out, _ := args.Get(0).([]models.GenerationSession)
	return out, args.Error(1)
}

func (m *mockSessionRepository) GetActiveByProject(ctx context.Context, projectID uuid.UUID, dest *models.GenerationSession) error {
	args := m.Called(ctx, projectID, dest)
	fill(args, 1, dest)
	return args.Error(0)
}

func (m *mockSessionRepository) GetStatus(ctx context.Context, sessionID uuid.UUID) (string, error) {
	args := m.Called(ctx, sessionID)
	return args.String(0), args.Error(1)
}

func (m *mockSessionRepository) Transition(ctx context.Context, sessionID uuid.UUID, to, errMsg string) (*models.GenerationSession, error) {
	args := m.Called(ctx, sessionID, to, errMsg)
	s, _ := args.Get(0).(*models.GenerationSession)
	return s, args.Error(1)
}

func (m *mockSessionRepository) UpdateProgress(ctx context.Context, sessionID uuid.UUID, p repository.SessionProgress) error {
	return m.Called(ctx, sessionID, p).Error(0)
}

type mockAPIKeyRepository struct {
	mockBase[models.APIKey]
}

func (m *mockAPIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).([]models.APIKey)
	return out, args.Error(1)
}

func (m *mockAPIKeyRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).([]models.APIKey)
	return out, args.Error(1)
}

func (m *mockAPIKeyRepository) ListActive(ctx context.Context, afterID uuid.UUID, limit int) ([]models.APIKey, error) {
	args := m.Called(ctx, afterID, limit)
	out, _ := args.Get(0).([]models.APIKey)
	return out, args.Error(1)
}

func (m *mockAPIKeyRepository) GetOwned(ctx context.Context, keyID, userID uuid.UUID, dest *models.APIKey) error {
	args := m.Called(ctx, keyID, userID, dest)
	fill(args, 1, dest)
	return args.Error(0)
}

func (m *mockAPIKeyRepository) Upsert(ctx context.Context, k *models.APIKey) error {
	args := m.Called(ctx, k)
	if args.Error(0) == nil && k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockAPIKeyRepository) RecordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	return m.Called(ctx, keyID, at).Error(0)
}

func (m *mockAPIKeyRepository) RecordValidation(ctx context.Context, keyID uuid.UUID, valid bool, validationErr string, quota datatypes.JSON, at time.Time) error {
	return m.Called(ctx, keyID, valid, validationErr, quota, at).Error(0)
}

func (m *mockAPIKeyRepository) SetActive(ctx context.Context, keyID, userID uuid.UUID, active bool) error {
	return m.Called(ctx, keyID, userID, active).Error(0)
}

func (m *mockAPIKeyRepository) DeleteOwned(ctx context.Context, keyID, userID uuid.UUID) error {
	return m.Called(ctx, keyID, userID).Error(0)
}

func (m *mockAPIKeyRepository) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockUsageRepository struct {
	mockBase[models.UsageLog]
}

func (m *mockUsageRepository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageLog, error) {
	args := m.Called(ctx, userID, limit)
	out, _ := args.Get(0).([]models.UsageLog)
	return out, args.Error(1)
}

func (m *mockUsageRepository) SummarizeByUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]repository.ProviderUsage, error) {
	args := m.Called(ctx, userID, since)
	out, _ := args.Get(0).([]repository.ProviderUsage)
	return out, args.Error(1)
}

type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) Chat(ctx context.Context, userID uuid.UUID, requestType string, req llm.ChatRequest) (llm.ChatResponse, error) {
	args := m.Called(ctx, userID, requestType, req)
	return args.Get(0).(llm.ChatResponse), args.Error(1)
}

func (m *mockRouter) UsableKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).([]models.APIKey)
	return out, args.Error(1)
}

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) Validate(ctx context.Context, provider, apiKey string) llm.ValidationResult {
	return m.Called(ctx, provider, apiKey).Get(0).(llm.ValidationResult)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

// prefixBox "seals" by prefixing the additional data, which is enough to
// assert what a key was bound to.
type prefixBox struct {
	stale map[string]bool
}

func (prefixBox) SealString(value, aad string) (string, error) { return aad + "|" + value, nil }

func (prefixBox) OpenString(raw, aad string) (string, error) {
	if len(raw) <= len(aad)+1 || raw[:len(aad)] != aad {
		return "", os.ErrInvalid
	}
	return raw[len(aad)+1:], nil
}

func (b prefixBox) NeedsRotation(raw string) bool { return b.stale[raw] }

type recordingPublisher struct {
	mu      sync.Mutex
	updates map[string][]progress.Update
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{updates: map[string][]progress.Update{}}
}

func (p *recordingPublisher) Publish(_ context.Context, sessionID string, u progress.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates[sessionID] = append(p.updates[sessionID], u)
	return nil
}

func (p *recordingPublisher) For(sessionID uuid.UUID) []progress.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]progress.Update(nil), p.updates[sessionID.String()]...)
}
