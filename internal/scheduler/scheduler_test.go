package scheduler

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lumnicode/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

type mockKeys struct {
	mock.Mock
}

func (m *mockKeys) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockKeys) RevalidateActiveKeys(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestRunDispatchesJobs(t *testing.T) {
	keys := &mockKeys{}
	keys.On("ResetMonthlyUsage", mock.Anything).Return(int64(4), nil).Once()
	keys.On("RevalidateActiveKeys", mock.Anything).Return(0, errors.New("db down")).Once()

	s := New(keys)
	require.NoError(t, s.Run(context.Background(), JobUsageReset))
	assert.EqualError(t, s.Run(context.Background(), JobKeyValidation), "db down")
	assert.Error(t, s.Run(context.Background(), "compact"))
	keys.AssertExpectations(t)
}

func TestRegister(t *testing.T) {
	s := New(&mockKeys{})
	require.NoError(t, s.Register("0 0 1 * *", "0 */6 * * *"))
	// re-registering replaces the entries
	require.NoError(t, s.Register("0 0 1 * *", "*/30 * * * *"))
	assert.Len(t, s.cron.Entries(), 2)

	s.Start()
	defer s.Stop(context.Background())

	next, ok := s.Next(JobUsageReset)
	require.True(t, ok)
	assert.Equal(t, 1, next.Day())
	assert.Equal(t, 0, next.Hour())

	next, ok = s.Next(JobKeyValidation)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), next, 31*time.Minute)

	_, ok = s.Next("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	err := New(&mockKeys{}).Register("every month", "0 */6 * * *")
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobUsageReset)
}
