package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type scriptedRunner struct {
	calls  []call
	stdout string
	stderr string
	err    error
	// write, when set, receives the kraken output path and creates it.
	write func(outPath string) error
}

func (r *scriptedRunner) run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	if r.write != nil && len(args) > 2 && args[0] == "-i" {
		if err := r.write(args[2]); err != nil {
			return nil, nil, err
		}
	}
	return []byte(r.stdout), []byte(r.stderr), r.err
}

func TestLooksLikePersistentID(t *testing.T) {
	assert.True(t, LooksLikePersistentID("10.5281/zenodo.10592716"))
	assert.True(t, LooksLikePersistentID("https://zenodo.org/records/1"))
	assert.False(t, LooksLikePersistentID("catmus.mlmodel"))
	assert.False(t, LooksLikePersistentID("/models/en_best.mlmodel"))
}

func TestKraken_EnsureAvailable_ParsesModelFile(t *testing.T) {
	r := &scriptedRunner{stdout: "Processing...\nModel name: CATMuS (model files: catmus-print-fondue-large.mlmodel, extra.json)\n"}
	k := NewKraken(KrakenOptions{Bin: "kraken", AutoInstall: true, Runner: r.run})

	got, err := k.EnsureAvailable(context.Background(), DefaultModel)
	require.NoError(t, err)
	assert.Equal(t, "catmus-print-fondue-large.mlmodel", got)
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"get", DefaultModel}, r.calls[0].args)
}

func TestKraken_EnsureAvailable_ModelFilesOnStderr(t *testing.T) {
	r := &scriptedRunner{stderr: "(model files: a.mlmodel)"}
	k := NewKraken(KrakenOptions{AutoInstall: true, Runner: r.run})

	got, err := k.EnsureAvailable(context.Background(), "10.1/x")
	require.NoError(t, err)
	assert.Equal(t, "a.mlmodel", got)
}

func TestKraken_EnsureAvailable_UnparseableKeepsRef(t *testing.T) {
	r := &scriptedRunner{stdout: "done"}
	k := NewKraken(KrakenOptions{AutoInstall: true, Runner: r.run})

	got, err := k.EnsureAvailable(context.Background(), "10.1/x")
	require.NoError(t, err)
	assert.Equal(t, "10.1/x", got)
}

func TestKraken_EnsureAvailable_SkipsLocalAndDisabled(t *testing.T) {
	r := &scriptedRunner{}
	k := NewKraken(KrakenOptions{AutoInstall: true, Runner: r.run})
	got, err := k.EnsureAvailable(context.Background(), "local.mlmodel")
	require.NoError(t, err)
	assert.Equal(t, "local.mlmodel", got)

	k = NewKraken(KrakenOptions{AutoInstall: false, Runner: r.run})
	got, err = k.EnsureAvailable(context.Background(), DefaultModel)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, got)
	assert.Empty(t, r.calls)
}

func TestKraken_EnsureAvailable_Failure(t *testing.T) {
	r := &scriptedRunner{stderr: "no such record", err: errors.New("exit status 1")}
	k := NewKraken(KrakenOptions{AutoInstall: true, Runner: r.run})

	_, err := k.EnsureAvailable(context.Background(), "10.1/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kraken get failed")
	assert.Contains(t, err.Error(), "no such record")
}

func TestKraken_MissingBinary(t *testing.T) {
	k := NewKraken(KrakenOptions{Bin: "folio-no-such-kraken-binary", AutoInstall: true})

	_, err := k.EnsureAvailable(context.Background(), DefaultModel)
	require.ErrorIs(t, err, ErrEngineUnavailable)

	_, err = k.Recognize(context.Background(), "page.jpg", "m.mlmodel")
	require.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestKraken_Recognize(t *testing.T) {
	r := &scriptedRunner{write: func(outPath string) error {
		return os.WriteFile(outPath, []byte("Hello\nWorld\n"), 0o600)
	}}
	k := NewKraken(KrakenOptions{Runner: r.run})

	text, err := k.Recognize(context.Background(), "/cache/page.jpg", "m.mlmodel")
	require.NoError(t, err)
	assert.Equal(t, "Hello\nWorld\n", text)

	require.Len(t, r.calls, 1)
	args := r.calls[0].args
	assert.Equal(t, "kraken", r.calls[0].name)
	assert.Equal(t, []string{"-i", "/cache/page.jpg"}, args[:2])
	assert.Equal(t, "out.txt", filepath.Base(args[2]))
	assert.Equal(t, []string{"binarize", "segment", "-bl", "ocr", "-m", "m.mlmodel"}, args[3:])
	assert.False(t, dirExists(filepath.Dir(args[2])), "work dir is removed")
}

func TestKraken_Recognize_NoOutputIsEmptyText(t *testing.T) {
	r := &scriptedRunner{}
	k := NewKraken(KrakenOptions{Runner: r.run})

	text, err := k.Recognize(context.Background(), "page.jpg", "m")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestKraken_Recognize_InvalidUTF8Replaced(t *testing.T) {
	r := &scriptedRunner{write: func(outPath string) error {
		return os.WriteFile(outPath, []byte{'a', 0xff, 'b'}, 0o600)
	}}
	k := NewKraken(KrakenOptions{Runner: r.run})

	text, err := k.Recognize(context.Background(), "page.jpg", "m")
	require.NoError(t, err)
	assert.Equal(t, "a�b", text)
}

func TestKraken_Recognize_CommandFailure(t *testing.T) {
	r := &scriptedRunner{stderr: "segmentation failed", err: errors.New("exit status 2")}
	k := NewKraken(KrakenOptions{Runner: r.run})

	_, err := k.Recognize(context.Background(), "page.jpg", "m")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEngineUnavailable)
	assert.Contains(t, err.Error(), "segmentation failed")
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
