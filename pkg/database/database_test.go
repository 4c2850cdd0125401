package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/lumnicode/engine/pkg/logger"
)

func TestBackoffCaps(t *testing.T) {
	b := Backoff{Delay: 100 * time.Millisecond, MaxDelay: time.Second}
	require.Equal(t, 100*time.Millisecond, b.Next(0))
	require.Equal(t, 400*time.Millisecond, b.Next(2))
	require.Equal(t, time.Second, b.Next(4))
	require.Equal(t, time.Second, b.Next(80))
}

func TestBackoffWaitCanceled(t *testing.T) {
	b := Backoff{Delay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Wait(ctx, 0), context.Canceled)
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestOpenRedis(t *testing.T) {
	logger.InitNop()
	mr := miniredis.RunT(t)

	rdb, err := OpenRedis(context.Background(), mr.Addr(), "")
	require.NoError(t, err)
	defer rdb.Close()
	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}
