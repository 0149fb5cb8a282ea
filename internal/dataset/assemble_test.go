package dataset

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"cohorttool/internal/archive"
	"cohorttool/internal/codemap"
	"cohorttool/internal/cohort"
	"cohorttool/internal/comorbidity"
	"cohorttool/internal/treatment"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := archive.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// buildFlags resolves one comorbidity category and annotates it from a
// single synthetic diagnosis archive.
func buildFlags(t *testing.T, flaggedPatients []int64) *comorbidity.Flags {
	t.Helper()
	dir := t.TempDir()

	type masterRow struct {
		ICD10Code   string `parquet:"icd10_code"`
		ICD10Kind   string `parquet:"icd10_kind"`
		ClaimCode   string `parquet:"claim_code"`
		DiseaseName string `parquet:"disease_name"`
	}
	masterPath := filepath.Join(dir, "master.parquet")
	if err := archive.WriteTable(masterPath, []masterRow{
		{ICD10Code: "I10", ICD10Kind: "1", ClaimCode: "4000001"},
	}); err != nil {
		t.Fatal(err)
	}
	diseases, err := codemap.LoadDiseaseMap(masterPath, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	categories, err := comorbidity.ResolveCategories(
		map[string][]string{"hypertension": {"I10"}}, "1", diseases, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ids := make(map[int64]bool)
	var rows []archive.DiagnosisRow
	for _, pid := range flaggedPatients {
		ids[pid] = true
		rows = append(rows, archive.DiagnosisRow{PatientID: pid, DiseaseCode: "4000001", StartDate: "2015/01/01"})
	}
	// Annotate scans only the archive; unrelated patients stay unflagged.
	ids[9999] = true
	archPath := filepath.Join(dir, archive.DiagnosisPrefix+"201501.parquet")
	if err := archive.WriteTable(archPath, rows); err != nil {
		t.Fatal(err)
	}
	flags, _ := comorbidity.Annotate([]string{archPath}, ids, categories, 0, 0, 1, zap.NewNop())
	return flags
}

func TestAgeAtIndex(t *testing.T) {
	index := date(t, "2015/04/10")
	if age := AgeAtIndex("198503", index); age == nil || *age != 30 {
		t.Errorf("age = %v, want 30", age)
	}
	// Only the birth year enters the calculation.
	if age := AgeAtIndex("198512", index); age == nil || *age != 30 {
		t.Errorf("age = %v, want 30 regardless of birth month", age)
	}
	if age := AgeAtIndex("", index); age != nil {
		t.Errorf("age = %v for empty birth month, want nil", age)
	}
	if age := AgeAtIndex("19x5", index); age != nil {
		t.Errorf("age = %v for garbage birth month, want nil", age)
	}
}

func TestAssembleBaseline(t *testing.T) {
	patients := []cohort.Patient{
		{PatientID: 1, IndexDate: date(t, "2015/04/10")},
		{PatientID: 2, IndexDate: date(t, "2016/01/05")},
	}
	enrollment := []EnrollmentRow{
		{PatientID: 1, BirthMonth: "198503", SexCode: "1", InsurerKind: "01", RegionCode: "13"},
		// Patient 2 has no enrollment entry.
	}
	first := date(t, "2015/04/20")
	res := &treatment.Result{
		Groups:        map[int64]treatment.Group{1: treatment.GroupReduction},
		FirstDispense: map[int64]time.Time{1: first},
	}
	flags := buildFlags(t, []int64{1})

	rows := AssembleBaseline(patients, enrollment, res, flags)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	r1 := rows[0]
	if r1.TreatmentGroup != 1 || r1.TreatmentGroupName != "reduction" {
		t.Errorf("patient 1 group = %d/%s, want 1/reduction", r1.TreatmentGroup, r1.TreatmentGroupName)
	}
	if r1.FirstDispenseDate == nil || *r1.FirstDispenseDate != "2015/04/20" {
		t.Errorf("patient 1 first dispense = %v, want 2015/04/20", r1.FirstDispenseDate)
	}
	if r1.AgeAtIndex == nil || *r1.AgeAtIndex != 30 {
		t.Errorf("patient 1 age = %v, want 30", r1.AgeAtIndex)
	}
	if r1.SexCode == nil || *r1.SexCode != "1" {
		t.Errorf("patient 1 sex = %v, want 1", r1.SexCode)
	}
	if len(r1.Comorbidities) != 1 || r1.Comorbidities[0] != "hypertension" {
		t.Errorf("patient 1 comorbidities = %v, want [hypertension]", r1.Comorbidities)
	}

	// Missing classification and enrollment degrade, not drop.
	r2 := rows[1]
	if r2.TreatmentGroup != int32(treatment.GroupUndetermined) {
		t.Errorf("patient 2 group = %d, want undetermined", r2.TreatmentGroup)
	}
	if r2.FirstDispenseDate != nil || r2.AgeAtIndex != nil || r2.SexCode != nil {
		t.Error("patient 2 should have nil dispense date and demographics")
	}
	if len(r2.Comorbidities) != 0 {
		t.Errorf("patient 2 comorbidities = %v, want none", r2.Comorbidities)
	}
}

func TestLoadEnrollmentFiltersPatients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enrollment.parquet")
	rows := []EnrollmentRow{
		{PatientID: 1, BirthMonth: "198503"},
		{PatientID: 2, BirthMonth: "199001"},
		{PatientID: 3, BirthMonth: "197507"},
	}
	if err := archive.WriteTable(path, rows); err != nil {
		t.Fatal(err)
	}
	got, err := LoadEnrollment(path, map[int64]bool{1: true, 3: true}, 0)
	if err != nil {
		t.Fatalf("LoadEnrollment: %v", err)
	}
	if len(got) != 2 || got[0].PatientID != 1 || got[1].PatientID != 3 {
		t.Errorf("got %+v, want patients 1 and 3", got)
	}
}

func f(v float64) *float64 { return &v }

func TestExamTimeSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exam.parquet")
	patients := []cohort.Patient{{PatientID: 1, IndexDate: date(t, "2016/04/01")}}

	exams := []ExamRow{
		// Two before-index exams: the later one sits closer to the index
		// date and must win.
		{PatientID: 1, ExamDate: "2015/01/15", GammaGTP: f(120)},
		{PatientID: 1, ExamDate: "2015/11/15", GammaGTP: f(110)},
		// Exactly on the index date: belongs to after_index, not before.
		{PatientID: 1, ExamDate: "2016/04/01", GammaGTP: f(100)},
		// year1 window.
		{PatientID: 1, ExamDate: "2017/04/15", GammaGTP: f(60)},
		// Gap between after_index and year1: no time point.
		{PatientID: 1, ExamDate: "2016/12/01", GammaGTP: f(80)},
		// Different patient, not in cohort.
		{PatientID: 2, ExamDate: "2016/05/01", GammaGTP: f(50)},
	}
	if err := archive.WriteTable(path, exams); err != nil {
		t.Fatal(err)
	}

	rows, err := ExamTimeSeries(path, patients, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("ExamTimeSeries: %v", err)
	}

	byPoint := make(map[string]TimeSeriesRow)
	for _, r := range rows {
		if r.PatientID != 1 {
			t.Fatalf("row for patient %d, want only patient 1", r.PatientID)
		}
		byPoint[r.TimePoint] = r
	}
	if len(byPoint) != 3 {
		t.Fatalf("got time points %v, want before_index, after_index, year1", byPoint)
	}

	before := byPoint["before_index"]
	if before.ExamDate != "2015/11/15" {
		t.Errorf("before_index exam = %s, want the closer 2015/11/15", before.ExamDate)
	}
	if before.GammaGTP == nil || *before.GammaGTP != 110 {
		t.Errorf("before_index gamma_gtp = %v, want 110", before.GammaGTP)
	}

	after := byPoint["after_index"]
	if after.ExamDate != "2016/04/01" {
		t.Errorf("after_index exam = %s, want the index-day exam", after.ExamDate)
	}
	if after.DaysFromAnchor != 0 {
		t.Errorf("after_index days = %d, want 0", after.DaysFromAnchor)
	}

	if byPoint["year1"].ExamDate != "2017/04/15" {
		t.Errorf("year1 exam = %s, want 2017/04/15", byPoint["year1"].ExamDate)
	}
}
