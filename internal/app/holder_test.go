package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_Lifecycle(t *testing.T) {
	var h Holder

	assert.False(t, h.Ready())
	_, err := h.Get()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = h.Process(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNotReady)

	boom := errors.New("weights missing")
	h.Fail(boom)
	assert.Equal(t, boom, h.Err())
	assert.False(t, h.Ready())

	rec := &stubRecognizer{}
	a, err := New(context.Background(), heuristicConfig(t),
		WithRecognizer(rec), WithClassifier(stubClassifier{}))
	require.NoError(t, err)

	h.Set(a)
	assert.True(t, h.Ready())
	assert.NoError(t, h.Err())
	got, err := h.Get()
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, h.Close())
	assert.False(t, h.Ready())
	assert.Equal(t, int32(1), rec.closed.Load())
}

func TestHolder_ClosedAppIsNotReady(t *testing.T) {
	var h Holder
	a, err := New(context.Background(), heuristicConfig(t),
		WithRecognizer(&stubRecognizer{}), WithClassifier(stubClassifier{}))
	require.NoError(t, err)
	h.Set(a)

	require.NoError(t, a.Close())
	assert.False(t, h.Ready())
}

func TestHolder_SetAfterCloseReleasesApp(t *testing.T) {
	var h Holder
	require.NoError(t, h.Close())

	rec := &stubRecognizer{}
	a, err := New(context.Background(), heuristicConfig(t),
		WithRecognizer(rec), WithClassifier(stubClassifier{}))
	require.NoError(t, err)

	h.Set(a)
	assert.False(t, h.Ready())
	assert.False(t, a.Ready())
	assert.Equal(t, int32(1), rec.closed.Load())
	assert.NoError(t, h.Close())
}
