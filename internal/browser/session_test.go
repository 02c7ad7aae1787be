package browser

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/hcrenew/internal/config"
	"github.com/ibeckermayer/hcrenew/internal/locator"
)

func TestSessionOutlivesLaunchContext(t *testing.T) {
	runCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	s := NewLauncher(config.Default().Browser, zerolog.Nop()).newSession(runCtx)
	<-runCtx.Done()

	assert.NoError(t, s.ctx.Err(), "tab must survive the run deadline")

	detached, done := s.bounded(context.WithoutCancel(runCtx), time.Minute)
	assert.NoError(t, detached.Err())
	done()

	expired, done := s.bounded(runCtx, time.Minute)
	assert.Eventually(t, func() bool { return expired.Err() != nil }, time.Second, 10*time.Millisecond)
	done()

	_ = s.Close()
	assert.Error(t, s.ctx.Err())
}

func TestSessionAfterClose(t *testing.T) {
	s := NewLauncher(config.Default().Browser, zerolog.Nop()).newSession(context.Background())
	_ = s.Close()
	_ = s.Close()

	ctx := context.Background()
	assert.ErrorIs(t, s.Navigate(ctx, "https://example.com"), ErrClosed)
	assert.ErrorIs(t, s.WaitVisible(ctx, locator.CSS("body"), time.Second), ErrClosed)
	assert.ErrorIs(t, s.Screenshot(ctx, filepath.Join(t.TempDir(), "shot.png")), ErrClosed)
}

func TestSessionFrameScope(t *testing.T) {
	s := NewLauncher(config.Default().Browser, zerolog.Nop()).newSession(context.Background())
	defer s.Close()

	ctx := context.Background()
	require.ErrorIs(t, s.ExitFrame(ctx), ErrNoFrame)

	_, opts := s.query(locator.CSS("input"))
	assert.Len(t, opts, 1)
}
