package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
target:
  icd10_code: F102
drug_classes:
  reduction_atc: [N07BB05]
  abstinence_atc: [N07BB03, N07BB01]
comorbidities:
  hypertension: [I10, I11, I12, I13, I15]
  diabetes: [E10, E11, E12, E13, E14]
paths:
  diagnosis_master: /data/master/diagnosis.parquet
  drug_master: /data/master/drug.parquet
  diagnosis_dir: /data/claims/diagnosis
  dispensing_dir: /data/claims/dispensing
  dispense_date_dir: /data/claims/dispensing_date
  enrollment_file: /data/enrollment.parquet
  exam_file: /data/exam.parquet
  output_dir: /data/out
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Study.PeriodStart != "2014-04-01" || cfg.Study.PeriodEnd != "2023-09-30" {
		t.Errorf("period = %s..%s, want defaults", cfg.Study.PeriodStart, cfg.Study.PeriodEnd)
	}
	if cfg.PeriodStart().IsZero() || !cfg.PeriodEnd().After(cfg.PeriodStart()) {
		t.Error("parsed period dates are not set")
	}
	want := []int{52, 26, 156}
	if len(cfg.Study.WashoutWeeks) != len(want) {
		t.Fatalf("washout weeks = %v, want %v", cfg.Study.WashoutWeeks, want)
	}
	for i := range want {
		if cfg.Study.WashoutWeeks[i] != want[i] {
			t.Errorf("washout weeks = %v, want %v (first entry is the primary cohort)",
				cfg.Study.WashoutWeeks, want)
			break
		}
	}
	if cfg.Study.AssessmentWindowWeeks != 52 {
		t.Errorf("assessment window = %d, want 52", cfg.Study.AssessmentWindowWeeks)
	}
	if cfg.Target.ICD10Kind != "1" {
		t.Errorf("icd10 kind = %s, want 1", cfg.Target.ICD10Kind)
	}

	names := cfg.ComorbidityNames()
	if len(names) != 2 || names[0] != "diabetes" || names[1] != "hypertension" {
		t.Errorf("comorbidity names = %v, want sorted [diabetes hypertension]", names)
	}
}

func TestLoadOverrides(t *testing.T) {
	content := validConfig + `
study:
  period_start: 2018-01-01
  period_end: 2020-12-31
  washout_weeks: [26]
  assessment_window_weeks: 12
row_cap: 1000
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PeriodStart().Year() != 2018 || cfg.PeriodEnd().Year() != 2020 {
		t.Errorf("period = %s..%s", cfg.Study.PeriodStart, cfg.Study.PeriodEnd)
	}
	if len(cfg.Study.WashoutWeeks) != 1 || cfg.Study.WashoutWeeks[0] != 26 {
		t.Errorf("washout weeks = %v, want [26]", cfg.Study.WashoutWeeks)
	}
	if cfg.RowCap != 1000 {
		t.Errorf("row cap = %d, want 1000", cfg.RowCap)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		message string
	}{
		{"missing icd10 code", func(s string) string {
			return strings.Replace(s, "icd10_code: F102", "icd10_kind: \"1\"", 1)
		}, "icd10_code"},
		{"empty reduction class", func(s string) string {
			return strings.Replace(s, "reduction_atc: [N07BB05]", "reduction_atc: []", 1)
		}, "reduction_atc"},
		{"empty comorbidity prefixes", func(s string) string {
			return strings.Replace(s, "diabetes: [E10, E11, E12, E13, E14]", "diabetes: []", 1)
		}, "comorbidities.diabetes"},
		{"inverted period", func(s string) string {
			return s + "\nstudy:\n  period_start: 2023-01-01\n  period_end: 2014-01-01\n"
		}, "not after"},
		{"bad date", func(s string) string {
			return s + "\nstudy:\n  period_start: April 2014\n"
		}, "period_start"},
		{"zero washout", func(s string) string {
			return s + "\nstudy:\n  washout_weeks: [0]\n"
		}, "washout"},
		{"negative row cap", func(s string) string {
			return s + "\nrow_cap: -1\n"
		}, "row_cap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.mutate(validConfig)))
			if err == nil {
				t.Fatal("Load accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Errorf("error %q does not mention %q", err, tc.message)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load accepted a missing config file")
	}
}
