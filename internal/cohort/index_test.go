package cohort

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"cohorttool/internal/archive"
)

func date(s string) time.Time {
	d, err := archive.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

var (
	periodStart = date("2014/04/01")
	periodEnd   = date("2023/09/30")
)

func TestResolveIndexDatesFirstEventWins(t *testing.T) {
	// Rows arrive unordered, as concatenated from per-period archives.
	rows := []archive.DiagnosisRow{
		{PatientID: 1001, ReceiptID: 3, ReceiptMonth: "201506", DiseaseCode: "8830444", StartDate: "2015/06/20"},
		{PatientID: 1001, ReceiptID: 1, ReceiptMonth: "201504", DiseaseCode: "8830444", StartDate: "2015/04/10", PrimaryFlag: 1},
		{PatientID: 1002, ReceiptID: 4, ReceiptMonth: "201601", DiseaseCode: "8830444", StartDate: "2016/01/05"},
		{PatientID: 1001, ReceiptID: 2, ReceiptMonth: "201505", DiseaseCode: "8830445", StartDate: "2015/05/01"},
	}

	patients, err := ResolveIndexDates(rows, periodStart, periodEnd, zap.NewNop())
	if err != nil {
		t.Fatalf("ResolveIndexDates: %v", err)
	}
	if len(patients) != 2 {
		t.Fatalf("got %d patients, want 2", len(patients))
	}

	p := patients[0]
	if p.PatientID != 1001 {
		t.Fatalf("patient = %d, want 1001", p.PatientID)
	}
	if !p.IndexDate.Equal(date("2015/04/10")) {
		t.Errorf("index date = %s, want 2015/04/10", archive.FormatDate(p.IndexDate))
	}
	if p.ReceiptID != 1 || p.PrimaryFlag != 1 {
		t.Errorf("provenance = receipt %d flag %d, want receipt 1 flag 1", p.ReceiptID, p.PrimaryFlag)
	}
	if p.QualifyingRows != 3 {
		t.Errorf("QualifyingRows = %d, want 3", p.QualifyingRows)
	}
}

func TestResolveIndexDatesTieBreaksOnPeriod(t *testing.T) {
	rows := []archive.DiagnosisRow{
		{PatientID: 1001, ReceiptID: 2, ReceiptMonth: "201505", DiseaseCode: "8830444", StartDate: "2015/04/10"},
		{PatientID: 1001, ReceiptID: 1, ReceiptMonth: "201504", DiseaseCode: "8830444", StartDate: "2015/04/10"},
	}
	patients, err := ResolveIndexDates(rows, periodStart, periodEnd, zap.NewNop())
	if err != nil {
		t.Fatalf("ResolveIndexDates: %v", err)
	}
	if patients[0].ReceiptMonth != "201504" {
		t.Errorf("tie broke to period %s, want 201504", patients[0].ReceiptMonth)
	}
}

func TestResolveIndexDatesPeriodFilter(t *testing.T) {
	rows := []archive.DiagnosisRow{
		// First event predates the study period: excluded entirely, not
		// re-anchored to the later in-period event.
		{PatientID: 1001, ReceiptID: 1, ReceiptMonth: "201401", DiseaseCode: "8830444", StartDate: "2014/01/15"},
		{PatientID: 1001, ReceiptID: 2, ReceiptMonth: "201506", DiseaseCode: "8830444", StartDate: "2015/06/01"},
		{PatientID: 1002, ReceiptID: 3, ReceiptMonth: "201504", DiseaseCode: "8830444", StartDate: "2015/04/10"},
		// After period end.
		{PatientID: 1003, ReceiptID: 4, ReceiptMonth: "202312", DiseaseCode: "8830444", StartDate: "2023/12/01"},
	}
	patients, err := ResolveIndexDates(rows, periodStart, periodEnd, zap.NewNop())
	if err != nil {
		t.Fatalf("ResolveIndexDates: %v", err)
	}
	if len(patients) != 1 || patients[0].PatientID != 1002 {
		t.Fatalf("got %+v, want only patient 1002", patients)
	}
}

func TestResolveIndexDatesBoundariesInclusive(t *testing.T) {
	rows := []archive.DiagnosisRow{
		{PatientID: 1, ReceiptID: 1, ReceiptMonth: "201404", DiseaseCode: "x", StartDate: "2014/04/01"},
		{PatientID: 2, ReceiptID: 2, ReceiptMonth: "202309", DiseaseCode: "x", StartDate: "2023/09/30"},
	}
	patients, err := ResolveIndexDates(rows, periodStart, periodEnd, zap.NewNop())
	if err != nil {
		t.Fatalf("ResolveIndexDates: %v", err)
	}
	if len(patients) != 2 {
		t.Errorf("got %d patients, want both boundary dates kept", len(patients))
	}
}

func TestResolveIndexDatesBadDatesDropped(t *testing.T) {
	rows := []archive.DiagnosisRow{
		{PatientID: 1, ReceiptID: 1, ReceiptMonth: "201504", DiseaseCode: "x", StartDate: "garbage"},
		{PatientID: 1, ReceiptID: 2, ReceiptMonth: "201505", DiseaseCode: "x", StartDate: "2015/05/01"},
	}
	patients, err := ResolveIndexDates(rows, periodStart, periodEnd, zap.NewNop())
	if err != nil {
		t.Fatalf("ResolveIndexDates: %v", err)
	}
	if len(patients) != 1 || !patients[0].IndexDate.Equal(date("2015/05/01")) {
		t.Fatalf("got %+v, want index 2015/05/01 from the parseable row", patients)
	}

	if _, err := ResolveIndexDates(nil, periodStart, periodEnd, zap.NewNop()); err == nil {
		t.Error("zero input rows did not error")
	}
	allBad := []archive.DiagnosisRow{{PatientID: 1, StartDate: "garbage"}}
	if _, err := ResolveIndexDates(allBad, periodStart, periodEnd, zap.NewNop()); err == nil {
		t.Error("all-unparseable input did not error")
	}
}

func TestTableRoundTrip(t *testing.T) {
	patients := []Patient{
		{PatientID: 1001, IndexDate: date("2015/04/10"), ReceiptID: 1, ReceiptMonth: "201504",
			DiseaseCode: "8830444", PrimaryFlag: 1, OutcomeCode: "1", QualifyingRows: 3},
		{PatientID: 1002, IndexDate: date("2016/01/05"), ReceiptID: 4, ReceiptMonth: "201601",
			DiseaseCode: "8830444", QualifyingRows: 1},
	}
	path := filepath.Join(t.TempDir(), "cohort_primary.parquet")
	if err := WriteTable(path, patients); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	got, err := ReadTable(path)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(got) != len(patients) {
		t.Fatalf("got %d patients, want %d", len(got), len(patients))
	}
	for i := range patients {
		if !got[i].IndexDate.Equal(patients[i].IndexDate) {
			t.Errorf("patient %d index date = %s, want %s", got[i].PatientID,
				archive.FormatDate(got[i].IndexDate), archive.FormatDate(patients[i].IndexDate))
		}
		got[i].IndexDate = patients[i].IndexDate
		if got[i] != patients[i] {
			t.Errorf("patient %d = %+v, want %+v", i, got[i], patients[i])
		}
	}
}
