package archive

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// Writer writes output rows to a zstd-compressed parquet file. Zstd keeps
// the analysis tables small while staying cheap to reload; page statistics
// let downstream query engines skip row groups on any predicate.
type Writer[T any] struct {
	file   *os.File
	writer *parquet.GenericWriter[T]
	count  int
}

// NewWriter creates a parquet writer for an output table.
func NewWriter[T any](path string) (*Writer[T], error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output parquet: %w", err)
	}
	writer := parquet.NewGenericWriter[T](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("cohorttool", "1.0", ""),
	)
	return &Writer[T]{file: file, writer: writer}, nil
}

// Write writes a batch of rows. Callers should batch rows to amortize
// write overhead; row groups are cut by the writer's buffer size.
func (w *Writer[T]) Write(rows []T) error {
	n, err := w.writer.Write(rows)
	w.count += n
	if err != nil {
		return fmt.Errorf("write output rows: %w", err)
	}
	return nil
}

// Close flushes the final row group and closes the file.
func (w *Writer[T]) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close output writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the number of rows written.
func (w *Writer[T]) Count() int { return w.count }

// WriteTable writes all rows to path in one call.
func WriteTable[T any](path string, rows []T) error {
	w, err := NewWriter[T](path)
	if err != nil {
		return err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadTable loads an entire output table back into memory. Output tables
// are small relative to the claim archives, so full reads are fine here.
func ReadTable[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read table rows: %w", err)
	}
	return rows[:n], nil
}
