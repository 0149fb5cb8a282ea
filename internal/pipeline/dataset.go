package pipeline

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"cohorttool/internal/archive"
	"cohorttool/internal/codemap"
	"cohorttool/internal/cohort"
	"cohorttool/internal/comorbidity"
	"cohorttool/internal/config"
	"cohorttool/internal/dataset"
	"cohorttool/internal/hostparams"
	"cohorttool/internal/report"
	"cohorttool/internal/treatment"
)

// BuildDatasets assembles the per-cohort analysis tables from the cohort
// files written by Extract: treatment classification, comorbidity flags,
// demographics and the longitudinal exam dataset.
func BuildDatasets(cfg *config.Config, params hostparams.Params, log *zap.Logger) (*report.RunSummary, error) {
	summary := &report.RunSummary{Stage: "dataset"}

	diseases, err := codemap.LoadDiseaseMap(cfg.Paths.DiagnosisMaster, log)
	if err != nil {
		return summary, err
	}
	drugs, err := codemap.LoadDrugMap(cfg.Paths.DrugMaster, log)
	if err != nil {
		return summary, err
	}

	reductionCodes, err := drugs.ClaimCodesForClass(cfg.DrugClasses.ReductionATC)
	if err != nil {
		return summary, fmt.Errorf("reduction drug class: %w", err)
	}
	abstinenceCodes, err := drugs.ClaimCodesForClass(cfg.DrugClasses.AbstinenceATC)
	if err != nil {
		return summary, fmt.Errorf("abstinence drug class: %w", err)
	}
	log.Info("resolved drug classes",
		zap.Strings("reduction_claim_codes", reductionCodes),
		zap.Strings("abstinence_claim_codes", abstinenceCodes))

	categories, err := comorbidity.ResolveCategories(cfg.Comorbidities, cfg.Target.ICD10Kind, diseases, log)
	if err != nil {
		return summary, err
	}

	diagnosisPaths, err := archive.List(cfg.Paths.DiagnosisDir, archive.DiagnosisPrefix)
	if err != nil {
		return summary, err
	}
	pairs, err := archive.PairDispensing(cfg.Paths.DispensingDir, cfg.Paths.DispenseDateDir, log)
	if err != nil {
		return summary, err
	}
	if len(pairs) == 0 {
		summary.Warnf("no dispensing archive pairs found; every patient will classify as undetermined")
	}

	classifier := treatment.NewClassifier(reductionCodes, abstinenceCodes,
		cfg.Study.AssessmentWindowWeeks, params.RowCap, params.ChunkRows, log)

	for _, variant := range cohort.Variants(cfg.Study.WashoutWeeks) {
		path := CohortPath(cfg.Paths.OutputDir, variant.Name)
		if _, err := os.Stat(path); err != nil {
			log.Warn("cohort table missing, skipping cohort",
				zap.String("cohort", variant.Name), zap.String("path", path))
			continue
		}
		patients, err := cohort.ReadTable(path)
		if err != nil {
			return summary, fmt.Errorf("read cohort %s: %w", variant.Name, err)
		}
		if len(patients) == 0 {
			log.Warn("cohort is empty, skipping dataset assembly",
				zap.String("cohort", variant.Name))
			continue
		}
		log.Info("assembling datasets",
			zap.String("cohort", variant.Name), zap.Int("patients", len(patients)))

		res := classifier.Classify(pairs, patients)

		flags, scanStats := comorbidity.Annotate(diagnosisPaths, cohort.PatientIDs(patients),
			categories, params.RowCap, params.ChunkRows, params.Workers, log)
		if scanStats.FilesFailed > 0 {
			summary.Warnf(fmt.Sprintf("%s: %d diagnosis archives unreadable during comorbidity scan",
				variant.Name, scanStats.FilesFailed))
		}

		enrollment, err := dataset.LoadEnrollment(cfg.Paths.EnrollmentFile,
			cohort.PatientIDs(patients), params.ChunkRows)
		if err != nil {
			log.Warn("enrollment table unavailable; demographics will be empty",
				zap.String("cohort", variant.Name), zap.Error(err))
		}

		baseline := dataset.AssembleBaseline(patients, enrollment, res, flags)
		baselinePath := BaselinePath(cfg.Paths.OutputDir, variant.Name)
		if err := archive.WriteTable(baselinePath, baseline); err != nil {
			return summary, fmt.Errorf("write baseline %s: %w", variant.Name, err)
		}
		summary.DatasetsWritten++
		log.Info("wrote baseline dataset",
			zap.String("cohort", variant.Name),
			zap.Int("rows", len(baseline)),
			zap.String("path", baselinePath))

		series, err := dataset.ExamTimeSeries(cfg.Paths.ExamFile, patients, params.ChunkRows, log)
		if err != nil {
			log.Warn("exam table unavailable; skipping longitudinal dataset",
				zap.String("cohort", variant.Name), zap.Error(err))
		} else {
			seriesPath := TimeSeriesPath(cfg.Paths.OutputDir, variant.Name)
			if err := archive.WriteTable(seriesPath, series); err != nil {
				return summary, fmt.Errorf("write timeseries %s: %w", variant.Name, err)
			}
			summary.DatasetsWritten++
			log.Info("wrote longitudinal dataset",
				zap.String("cohort", variant.Name),
				zap.Int("rows", len(series)),
				zap.String("path", seriesPath))
		}

		summary.AddCohort(variant.Name, len(patients))
	}

	summary.Log(log)
	return summary, nil
}
