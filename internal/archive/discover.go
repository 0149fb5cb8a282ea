package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// List returns the period-partitioned archives under dir with the given
// filename prefix, sorted by reporting period. A missing or empty directory
// is an error; required archive families abort the run when absent.
func List(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".parquet") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s*.parquet archives in %s", prefix, dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// Period extracts the YYYYMM reporting period from an archive filename.
func Period(path, prefix string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".parquet")
	return strings.TrimPrefix(name, prefix)
}

// Pair is a dispensing-event archive matched with its dispensing-date
// archive for the same reporting period.
type Pair struct {
	Period    string
	EventPath string
	DatePath  string
}

// PairDispensing matches dispensing archives in eventDir against their date
// archives in dateDir by reporting period. An event archive without a date
// counterpart is skipped with a warning; its period contributes nothing.
func PairDispensing(eventDir, dateDir string, log *zap.Logger) ([]Pair, error) {
	eventPaths, err := List(eventDir, DispensingPrefix)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, eventPath := range eventPaths {
		period := Period(eventPath, DispensingPrefix)
		datePath := filepath.Join(dateDir, DispenseDatePrefix+period+".parquet")
		if _, err := os.Stat(datePath); err != nil {
			log.Warn("dispensing archive has no date archive, skipping period",
				zap.String("event_archive", eventPath),
				zap.String("expected_date_archive", datePath))
			continue
		}
		pairs = append(pairs, Pair{Period: period, EventPath: eventPath, DatePath: datePath})
	}
	return pairs, nil
}
