package archive

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

// DefaultChunkRows is the read batch size when the caller supplies none.
const DefaultChunkRows = 8192

// ScanStats accounts for one archive family's scan across all its files.
type ScanStats struct {
	FilesScanned   int
	FilesFailed    int
	RowsMatched    int64
	CappedArchives []string
}

// checkSchema rejects files whose parquet schema is missing any column the
// row type needs. There is no fallback column naming: a file either matches
// the contract or is refused.
func checkSchema(pf *parquet.File, required []string, path string) error {
	present := make(map[string]bool)
	for _, field := range pf.Schema().Fields() {
		present[field.Name()] = true
	}
	for _, col := range required {
		if !present[col] {
			return fmt.Errorf("archive %s is missing column %q", path, col)
		}
	}
	return nil
}

// Scan streams one archive and collects rows matching pred, reading in
// chunks so large archives are never fully materialized. At most rowCap
// matches are kept (0 = unbounded); capped reports whether a match beyond
// the cap was discarded.
func Scan[T any](path string, required []string, pred func(T) bool, rowCap int64, chunkRows int) (rows []T, capped bool, err error) {
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat archive: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, false, fmt.Errorf("open parquet: %w", err)
	}
	if err := checkSchema(pf, required, path); err != nil {
		return nil, false, err
	}

	reader := parquet.NewGenericReader[T](pf)
	defer reader.Close()

	buf := make([]T, chunkRows)
	for {
		n, readErr := reader.Read(buf)
		for _, row := range buf[:n] {
			if !pred(row) {
				continue
			}
			if rowCap > 0 && int64(len(rows)) >= rowCap {
				return rows, true, nil
			}
			rows = append(rows, row)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, false, fmt.Errorf("read archive rows: %w", readErr)
		}
	}
	return rows, false, nil
}

// ScanAll scans the archives with up to workers concurrent readers and
// concatenates the matches in path order, so results are deterministic
// regardless of which scan finishes first. A single unreadable or malformed
// archive is logged and skipped so one bad period cannot abort the run.
// Row-cap truncation is warned per archive and recorded in the stats; it is
// never silent.
func ScanAll[T any](paths []string, required []string, pred func(T) bool, rowCap int64, chunkRows, workers int, log *zap.Logger) ([]T, ScanStats) {
	if workers < 1 {
		workers = 1
	}

	type result struct {
		rows   []T
		capped bool
		err    error
	}
	results := make([]result, len(paths))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			rows, capped, err := Scan(path, required, pred, rowCap, chunkRows)
			results[i] = result{rows: rows, capped: capped, err: err}
		}(i, path)
	}
	wg.Wait()

	var (
		all   []T
		stats ScanStats
	)
	for i, res := range results {
		if res.err != nil {
			stats.FilesFailed++
			log.Warn("skipping unreadable archive",
				zap.String("archive", paths[i]), zap.Error(res.err))
			continue
		}
		stats.FilesScanned++
		stats.RowsMatched += int64(len(res.rows))
		if res.capped {
			stats.CappedArchives = append(stats.CappedArchives, paths[i])
			log.Warn("row cap truncated matches; results from this archive are incomplete",
				zap.String("archive", paths[i]), zap.Int64("row_cap", rowCap))
		}
		all = append(all, res.rows...)
	}
	return all, stats
}
