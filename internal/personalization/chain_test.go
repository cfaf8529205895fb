package personalization_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/personalization"
)

type stubPersonalizer struct {
	result *personalization.Result
	err    error
	calls  int
}

func (s *stubPersonalizer) Personalize(context.Context, *domain.ContentItem, *domain.Profile) (*personalization.Result, error) {
	s.calls++
	return s.result, s.err
}

func chainLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chainItem() *domain.ContentItem {
	return &domain.ContentItem{ID: uuid.New(), UnitID: uuid.New(), Kind: domain.ContentKindStatic}
}

func TestChainReturnsFirstSuccess(t *testing.T) {
	t.Parallel()

	first := &stubPersonalizer{result: &personalization.Result{Transformed: json.RawMessage(`{"a":1}`)}}
	second := &stubPersonalizer{}
	chain := personalization.NewChain(chainLogger(), first, second)

	result, err := chain.Personalize(context.Background(), chainItem(), &domain.Profile{})
	require.NoError(t, err)
	assert.NotNil(t, result.Transformed)
	assert.Zero(t, second.calls, "fallback must not run after a success")
}

func TestChainFallsBackOnTransientFailure(t *testing.T) {
	t.Parallel()

	flaky := &stubPersonalizer{err: personalization.ErrTransientFailure}
	stable := &stubPersonalizer{result: &personalization.Result{}}
	chain := personalization.NewChain(chainLogger(), flaky, stable)

	result, err := chain.Personalize(context.Background(), chainItem(), &domain.Profile{})
	require.NoError(t, err)
	assert.True(t, result.Reference())
	assert.Equal(t, 1, flaky.calls)
	assert.Equal(t, 1, stable.calls)
}

func TestChainStopsOnStructuralFailure(t *testing.T) {
	t.Parallel()

	structural := errors.New("payload is not an object")
	broken := &stubPersonalizer{err: structural}
	fallback := &stubPersonalizer{result: &personalization.Result{}}
	chain := personalization.NewChain(chainLogger(), broken, fallback)

	_, err := chain.Personalize(context.Background(), chainItem(), &domain.Profile{})
	assert.ErrorIs(t, err, structural)
	assert.Zero(t, fallback.calls, "structural failures must not fall through")
}

func TestChainAllBackendsFail(t *testing.T) {
	t.Parallel()

	a := &stubPersonalizer{err: personalization.ErrTransientFailure}
	b := &stubPersonalizer{err: personalization.ErrTransientFailure}
	chain := personalization.NewChain(chainLogger(), a, b)

	_, err := chain.Personalize(context.Background(), chainItem(), &domain.Profile{})
	assert.ErrorIs(t, err, personalization.ErrTransientFailure)
}

func TestChainHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	failing := &stubPersonalizer{err: personalization.ErrTransientFailure}
	fallback := &stubPersonalizer{result: &personalization.Result{}}
	chain := personalization.NewChain(chainLogger(), failing, fallback)
	cancel()

	_, err := chain.Personalize(ctx, chainItem(), &domain.Profile{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallback.calls)
}
