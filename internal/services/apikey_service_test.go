package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lumnicode/engine/internal/llm"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/repository"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

func TestAddKeyValidatesThenSeals(t *testing.T) {
	userID := uuid.New()
	keys := &mockAPIKeyRepository{}
	v := &mockValidator{}
	v.On("Validate", mock.Anything, "openai", "sk-test-abcd1234").Return(llm.ValidationResult{Valid: true, QuotaInfo: map[string]any{"models": 3}})

	var saved *models.APIKey
	keys.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*models.APIKey)
	}).Return(nil)

	svc := NewAPIKeyService(keys, &mockUsageRepository{}, v, prefixBox{})
	k, err := svc.AddKey(context.Background(), userID, &AddKeyInput{Provider: "OpenAI", APIKey: " sk-test-abcd1234 "})
	require.NoError(t, err)

	require.NotNil(t, saved)
	assert.Equal(t, "openai Key", k.DisplayName)
	assert.Equal(t, llm.KeyAAD(userID, "openai")+"|sk-test-abcd1234", saved.EncryptedKey)
	assert.Equal(t, "****1234", saved.KeyHint)
	assert.True(t, saved.IsActive)
	assert.True(t, saved.IsValidated)
	assert.Equal(t, 60, saved.RateLimitPerMinute)
	assert.JSONEq(t, `{"models":3}`, string(saved.QuotaInfo))
}

func TestAddKeyRejectsInvalid(t *testing.T) {
	keys := &mockAPIKeyRepository{}
	v := &mockValidator{}
	v.On("Validate", mock.Anything, "anthropic", "bad").Return(llm.ValidationResult{Error: "Invalid API key"})

	svc := NewAPIKeyService(keys, &mockUsageRepository{}, v, prefixBox{})
	_, err := svc.AddKey(context.Background(), uuid.New(), &AddKeyInput{Provider: "anthropic", APIKey: "bad"})
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	assert.Contains(t, err.Error(), "Invalid API key")

	_, err = svc.AddKey(context.Background(), uuid.New(), &AddKeyInput{Provider: "mistral", APIKey: "x"})
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	keys.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestUsageStats(t *testing.T) {
	userID := uuid.New()
	limit := int64(100)
	keys := &mockAPIKeyRepository{}
	keys.On("ListByUser", mock.Anything, userID).Return([]models.APIKey{
		{ID: uuid.New(), Provider: "openai", IsActive: true, IsValidated: true, UsageCount: 7, CurrentMonthUsage: 2, MonthlyLimit: &limit},
		{ID: uuid.New(), Provider: "openai", IsActive: false, IsValidated: true, UsageCount: 3},
		{ID: uuid.New(), Provider: "groq", IsActive: true, IsValidated: false, UsageCount: 1},
	}, nil)
	usage := &mockUsageRepository{}
	usage.On("SummarizeByUser", mock.Anything, userID, mock.Anything).Return([]repository.ProviderUsage{{Provider: "openai", Calls: 2}}, nil)

	stats, err := NewAPIKeyService(keys, usage, &mockValidator{}, prefixBox{}).UsageStats(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalKeys)
	assert.Equal(t, 1, stats.ActiveKeys)
	assert.EqualValues(t, 11, stats.TotalUsage)
	assert.ElementsMatch(t, []string{"openai", "groq"}, stats.Providers)
	require.Len(t, stats.Keys, 3)
	assert.Equal(t, &limit, stats.Keys[0].MonthlyLimit)
	assert.Len(t, stats.ThisMonth, 1)
}

func TestRevalidateActiveKeysPagesAndReseals(t *testing.T) {
	userID := uuid.New()
	aad := llm.KeyAAD(userID, "groq")
	stale := aad + "|gsk-old"

	page := make([]models.APIKey, revalidatePageSize)
	for i := range page {
		page[i] = models.APIKey{ID: uuid.New(), UserID: userID, Provider: "groq", EncryptedKey: aad + "|gsk-1"}
	}
	last := page[len(page)-1].ID
	page[0].EncryptedKey = stale

	keys := &mockAPIKeyRepository{}
	keys.On("ListActive", mock.Anything, uuid.Nil, revalidatePageSize).Return(page, nil)
	keys.On("ListActive", mock.Anything, last, revalidatePageSize).Return([]models.APIKey{
		{ID: uuid.New(), UserID: userID, Provider: "groq", EncryptedKey: "garbage"},
	}, nil)
	keys.On("RecordValidation", mock.Anything, mock.Anything, true, "", mock.Anything, mock.Anything).Return(nil)
	keys.On("RecordValidation", mock.Anything, mock.Anything, false, "stored key could not be decrypted", mock.Anything, mock.Anything).Return(nil).Once()
	keys.On("Upsert", mock.Anything, mock.MatchedBy(func(k *models.APIKey) bool { return k.ID == page[0].ID })).Return(nil).Once()

	v := &mockValidator{}
	v.On("Validate", mock.Anything, "groq", mock.Anything).Return(llm.ValidationResult{Valid: true})

	svc := NewAPIKeyService(keys, &mockUsageRepository{}, v, prefixBox{stale: map[string]bool{stale: true}})
	n, err := svc.RevalidateActiveKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, revalidatePageSize+1, n)
	keys.AssertNumberOfCalls(t, "RecordValidation", revalidatePageSize+1)
	keys.AssertExpectations(t)
	v.AssertNumberOfCalls(t, "Validate", revalidatePageSize)
}

func TestDeactivateAndDeleteAreOwnerScoped(t *testing.T) {
	userID, keyID := uuid.New(), uuid.New()
	keys := &mockAPIKeyRepository{}
	keys.On("SetActive", mock.Anything, keyID, userID, false).Return(nil)
	keys.On("DeleteOwned", mock.Anything, keyID, userID).Return(appErr.New(appErr.CodeNotFound, "api key not found"))

	svc := NewAPIKeyService(keys, &mockUsageRepository{}, &mockValidator{}, prefixBox{})
	require.NoError(t, svc.DeactivateKey(context.Background(), keyID, userID))
	err := svc.DeleteKey(context.Background(), keyID, userID)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestValidateUserKeysSkipsInactive(t *testing.T) {
	userID := uuid.New()
	aad := llm.KeyAAD(userID, "openai")
	active := models.APIKey{ID: uuid.New(), UserID: userID, Provider: "openai", DisplayName: "Work", IsActive: true, EncryptedKey: aad + "|sk-live"}

	keys := &mockAPIKeyRepository{}
	keys.On("ListActiveByUser", mock.Anything, userID).Return([]models.APIKey{active}, nil)
	keys.On("RecordValidation", mock.Anything, active.ID, true, "", mock.Anything, mock.Anything).Return(nil).Once()
	v := &mockValidator{}
	v.On("Validate", mock.Anything, "openai", "sk-live").Return(llm.ValidationResult{Valid: true})

	out, err := NewAPIKeyService(keys, &mockUsageRepository{}, v, prefixBox{}).ValidateUserKeys(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, active.ID, out[0].KeyID)
	assert.True(t, out[0].Valid)
	keys.AssertNotCalled(t, "ListByUser", mock.Anything, mock.Anything)
	keys.AssertExpectations(t)
	v.AssertNumberOfCalls(t, "Validate", 1)
}
