package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Kraken(t *testing.T) {
	engine, resolver, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "kraken", engine.Name())
	assert.Same(t, engine, resolver)
}

func TestNew_Unknown(t *testing.T) {
	_, _, err := New(Config{Engine: "abbyy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abbyy")
}

func TestPassthrough(t *testing.T) {
	got, err := Passthrough.EnsureAvailable(context.Background(), DefaultModel)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, got)
}

func TestMemoize(t *testing.T) {
	calls := 0
	r := Memoize(ResolverFunc(func(_ context.Context, ref string) (string, error) {
		calls++
		if ref == "bad" {
			return "", assert.AnError
		}
		return ref + ".mlmodel", nil
	}))

	for range 3 {
		got, err := r.EnsureAvailable(context.Background(), "m")
		require.NoError(t, err)
		assert.Equal(t, "m.mlmodel", got)
	}
	assert.Equal(t, 1, calls)

	_, err := r.EnsureAvailable(context.Background(), "bad")
	require.Error(t, err)
	_, err = r.EnsureAvailable(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
