package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/receipt-extractor/internal/pipeline"
)

// echoProcessor treats the file content as the amount.
type echoProcessor struct {
	mu     sync.Mutex
	active int
	peak   int
	calls  atomic.Int32
	delay  time.Duration
}

func (p *echoProcessor) Process(ctx context.Context, data []byte) (*pipeline.Result, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(string(data))
	if err != nil {
		return nil, errors.New("invalid image: not a number")
	}
	date := "2025-11-15"
	return &pipeline.Result{Date: &date, Amount: amount, Category: "Groceries"}, nil
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestCollect(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"b.png":     "1",
		"a.JPG":     "1",
		"c.jpeg":    "1",
		"notes.txt": "x",
		"scan.pdf":  "x",
		"noext":     "x",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	files, err := Collect(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.JPG"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.jpeg"),
	}, files)

	_, err = Collect(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRun_KeepsInputOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"1.png": "10.5",
		"2.png": "oops",
		"3.png": "7",
		"4.png": "99.99",
	})
	files, err := Collect(dir)
	require.NoError(t, err)

	p := &echoProcessor{}
	rows, err := Run(context.Background(), p, files, 3)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "1.png", rows[0].File)
	assert.True(t, rows[0].Amount.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, "2025-11-15", rows[0].Date)
	assert.Equal(t, "Groceries", rows[0].Category)

	assert.Equal(t, "2.png", rows[1].File)
	assert.Equal(t, "invalid image: not a number", rows[1].Error)
	assert.Empty(t, rows[1].Date)

	assert.Equal(t, "3.png", rows[2].File)
	assert.Equal(t, "4.png", rows[3].File)
	assert.Equal(t, int32(4), p.calls.Load())
}

func TestRun_BoundsConcurrency(t *testing.T) {
	files := make(map[string]string)
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files[n+".jpg"] = "1"
	}
	paths, err := Collect(writeFiles(t, files))
	require.NoError(t, err)

	p := &echoProcessor{delay: 20 * time.Millisecond}
	rows, err := Run(context.Background(), p, paths, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 8)
	assert.LessOrEqual(t, p.peak, 2)
}

func TestRun_UnreadableFile(t *testing.T) {
	rows, err := Run(context.Background(), &echoProcessor{}, []string{filepath.Join(t.TempDir(), "gone.png")}, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "gone.png", rows[0].File)
	assert.NotEmpty(t, rows[0].Error)
}

func TestRun_Cancelled(t *testing.T) {
	paths, err := Collect(writeFiles(t, map[string]string{"a.png": "1", "b.png": "2"}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &echoProcessor{}
	_, err = Run(ctx, p, paths, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestRun_InvalidWorkers(t *testing.T) {
	_, err := Run(context.Background(), &echoProcessor{}, nil, 0)
	assert.Error(t, err)
}
