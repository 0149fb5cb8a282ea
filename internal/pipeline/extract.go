// Package pipeline wires the ETL stages together: cohort extraction and
// per-cohort analysis dataset assembly.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"cohorttool/internal/archive"
	"cohorttool/internal/codemap"
	"cohorttool/internal/cohort"
	"cohorttool/internal/config"
	"cohorttool/internal/hostparams"
	"cohorttool/internal/report"
)

// CohortPath returns the output path of a named cohort table.
func CohortPath(outputDir, name string) string {
	return filepath.Join(outputDir, "cohort_"+name+".parquet")
}

// BaselinePath returns the output path of a cohort's baseline dataset.
func BaselinePath(outputDir, name string) string {
	return filepath.Join(outputDir, name+"_baseline.parquet")
}

// TimeSeriesPath returns the output path of a cohort's longitudinal
// exam dataset.
func TimeSeriesPath(outputDir, name string) string {
	return filepath.Join(outputDir, name+"_timeseries_exam.parquet")
}

// Extract runs cohort extraction: resolve the target diagnosis code, scan
// the diagnosis archives, resolve index dates, and write one cohort table
// per washout variant plus the unfiltered set.
//
// Resolution and configuration failures abort with an error; single bad
// archives are skipped inside the scan and reported in the summary.
func Extract(cfg *config.Config, params hostparams.Params, log *zap.Logger) (*report.RunSummary, error) {
	summary := &report.RunSummary{Stage: "extract"}

	diseases, err := codemap.LoadDiseaseMap(cfg.Paths.DiagnosisMaster, log)
	if err != nil {
		return summary, err
	}

	claimCodes := diseases.ClaimCodes(cfg.Target.ICD10Code, cfg.Target.ICD10Kind)
	if len(claimCodes) == 0 {
		return summary, fmt.Errorf("ICD10 code %s (kind %s) resolves to no claim codes; nothing to scan for",
			cfg.Target.ICD10Code, cfg.Target.ICD10Kind)
	}
	summary.ClaimCodes = len(claimCodes)
	log.Info("resolved target diagnosis",
		zap.String("icd10_code", cfg.Target.ICD10Code),
		zap.Strings("claim_codes", claimCodes))

	paths, err := archive.List(cfg.Paths.DiagnosisDir, archive.DiagnosisPrefix)
	if err != nil {
		return summary, err
	}

	codeSet := codemap.Set(claimCodes)
	rows, stats := archive.ScanAll(paths, archive.Required(archive.DiagnosisPrefix),
		func(r archive.DiagnosisRow) bool { return codeSet[r.DiseaseCode] },
		params.RowCap, params.ChunkRows, params.Workers, log)
	summary.DiagnosisScan = stats
	summary.MatchedRows = stats.RowsMatched
	summary.CheckNonEmpty("diagnosis archive scan", len(rows))
	if len(rows) == 0 {
		return summary, fmt.Errorf("no diagnosis rows matched the %d resolved claim codes", len(claimCodes))
	}

	patients, err := cohort.ResolveIndexDates(rows, cfg.PeriodStart(), cfg.PeriodEnd(), log)
	if err != nil {
		return summary, err
	}
	summary.PatientsTotal = len(patients)
	summary.CheckNonEmpty("index-date resolution", len(patients))

	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		return summary, fmt.Errorf("create output dir: %w", err)
	}

	for _, variant := range cohort.Variants(cfg.Study.WashoutWeeks) {
		selected := patients
		if variant.Weeks > 0 {
			selected = cohort.Washout(patients, variant.Weeks, cfg.PeriodStart())
		}
		path := CohortPath(cfg.Paths.OutputDir, variant.Name)
		if err := cohort.WriteTable(path, selected); err != nil {
			return summary, fmt.Errorf("write cohort %s: %w", variant.Name, err)
		}
		summary.AddCohort(variant.Name, len(selected))
		log.Info("wrote cohort",
			zap.String("cohort", variant.Name),
			zap.Int("washout_weeks", variant.Weeks),
			zap.Int("patients", len(selected)),
			zap.String("path", path))
	}

	summary.Log(log)
	return summary, nil
}
