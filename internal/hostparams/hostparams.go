// Package hostparams derives scan parallelism and memory bounds from the
// host at startup. The values are computed once per run and passed down
// explicitly; nothing re-probes the host mid-run.
package hostparams

import (
	"go.uber.org/zap"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Params bounds archive scanning for one run.
type Params struct {
	// Workers is the reader parallelism budget: ~75% of logical CPUs.
	Workers int
	// ChunkRows is the per-read batch size.
	ChunkRows int
	// RowCap bounds matched rows kept per archive, derived from available
	// memory unless overridden by configuration.
	RowCap int64
}

const (
	defaultWorkers = 4
	chunkRows      = 8192
	maxRowCap      = 500_000
)

// Detect probes the host once. Probe failures fall back to conservative
// defaults with a warning; they never abort the run.
func Detect(rowCapOverride int64, log *zap.Logger) Params {
	p := Params{
		Workers:   defaultWorkers,
		ChunkRows: chunkRows,
		RowCap:    maxRowCap,
	}

	if n, err := cpu.Counts(true); err != nil {
		log.Warn("cpu probe failed, using default worker count", zap.Error(err))
	} else if n > 0 {
		p.Workers = max(1, n*3/4)
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		log.Warn("memory probe failed, using default row cap", zap.Error(err))
	} else {
		// ~30% of available memory at ~1KB per buffered row.
		bound := int64(vm.Available) * 3 / 10 / 1024
		if bound < maxRowCap {
			p.RowCap = max(bound, chunkRows)
		}
	}

	if rowCapOverride > 0 {
		p.RowCap = rowCapOverride
	}

	log.Info("host parameters",
		zap.Int("workers", p.Workers),
		zap.Int("chunk_rows", p.ChunkRows),
		zap.Int64("row_cap", p.RowCap))
	return p
}
