// Package batch runs the extraction pipeline over a directory of receipt
// images on a bounded worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/ironsheep/receipt-extractor/internal/export"
	"github.com/ironsheep/receipt-extractor/internal/log"
	"github.com/ironsheep/receipt-extractor/internal/pipeline"
)

// Extensions are the file extensions Collect picks up.
var Extensions = []string{".jpg", ".jpeg", ".png"}

// Processor extracts one receipt.
type Processor interface {
	Process(ctx context.Context, data []byte) (*pipeline.Result, error)
}

// Collect lists the receipt images directly inside dir, sorted by name.
func Collect(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isReceipt(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func isReceipt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

type task struct {
	ctx  context.Context
	proc Processor
	path string
	out  *export.Row
	wg   *sync.WaitGroup
}

// Run processes files with the given number of workers and returns one row
// per file in input order. Per-file failures land in Row.Error; Run itself
// only fails when the pool cannot be created or ctx ends.
func Run(ctx context.Context, p Processor, files []string, workers int) ([]export.Row, error) {
	if workers <= 0 {
		return nil, errors.New("worker count must be greater than 0")
	}
	logger := log.Named("batch")

	pool, err := ants.NewPoolWithFunc(workers, func(arg any) {
		t := arg.(*task)
		defer t.wg.Done()
		*t.out = processFile(t.ctx, t.proc, t.path)
		if t.out.Error != "" {
			logger.Warnf("%s: %s", t.path, t.out.Error)
		} else {
			logger.Debugf("%s: date=%s amount=%s category=%s",
				t.path, t.out.Date, t.out.Amount.StringFixed(2), t.out.Category)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	rows := make([]export.Row, len(files))
	var wg sync.WaitGroup
	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		t := &task{ctx: ctx, proc: p, path: path, out: &rows[i], wg: &wg}
		if err := pool.Invoke(t); err != nil {
			wg.Done()
			rows[i] = export.Row{File: filepath.Base(path), Error: err.Error()}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return rows, err
	}
	logger.Infof("processed %d receipts with %d workers", len(files), workers)
	return rows, nil
}

func processFile(ctx context.Context, p Processor, path string) export.Row {
	row := export.Row{File: filepath.Base(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		row.Error = err.Error()
		return row
	}
	res, err := p.Process(ctx, data)
	if err != nil {
		row.Error = err.Error()
		return row
	}
	row.Date = res.DateString()
	row.Amount = res.Amount
	row.Category = res.Category
	return row
}
