// Package report collects end-of-run accounting: per-cohort patient
// counts, per-stage archive success/failure counts and zero-match
// warnings.
package report

import (
	"go.uber.org/zap"

	"cohorttool/internal/archive"
)

// CohortCount is one cohort's final size.
type CohortCount struct {
	Name     string
	Patients int
}

// RunSummary aggregates what a pipeline run did. Stages append to it as
// they finish; Log renders it once at the end.
type RunSummary struct {
	Stage           string
	DiagnosisScan   archive.ScanStats
	ClaimCodes      int
	MatchedRows     int64
	PatientsTotal   int
	Cohorts         []CohortCount
	Warnings        []string
	DatasetsWritten int
}

// AddCohort records a cohort's final patient count.
func (s *RunSummary) AddCohort(name string, patients int) {
	s.Cohorts = append(s.Cohorts, CohortCount{Name: name, Patients: patients})
}

// Warnf records a run-level warning for the summary.
func (s *RunSummary) Warnf(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// CheckNonEmpty records a warning when a stage that plausibly should have
// matched rows produced none. Representation mismatches between code
// systems surface here instead of at final reporting.
func (s *RunSummary) CheckNonEmpty(stage string, count int) {
	if count == 0 {
		s.Warnf(stage + " produced zero matches; check code mappings and archive contents")
	}
}

// Log renders the run summary through the logger.
func (s *RunSummary) Log(log *zap.Logger) {
	fields := []zap.Field{
		zap.String("stage", s.Stage),
		zap.Int("claim_codes", s.ClaimCodes),
		zap.Int64("matched_rows", s.MatchedRows),
		zap.Int("archives_scanned", s.DiagnosisScan.FilesScanned),
		zap.Int("archives_failed", s.DiagnosisScan.FilesFailed),
		zap.Int("patients_total", s.PatientsTotal),
	}
	if len(s.DiagnosisScan.CappedArchives) > 0 {
		fields = append(fields, zap.Strings("capped_archives", s.DiagnosisScan.CappedArchives))
	}
	log.Info("run summary", fields...)

	for _, c := range s.Cohorts {
		log.Info("cohort", zap.String("name", c.Name), zap.Int("patients", c.Patients))
	}
	for _, w := range s.Warnings {
		log.Warn(w)
	}
}
