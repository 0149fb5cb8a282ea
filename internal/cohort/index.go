// Package cohort resolves per-patient index dates from matched diagnosis
// rows and derives washout cohorts from the resolved patient set.
package cohort

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"cohorttool/internal/archive"
)

// Patient is one index-dated patient. Resolved once and never mutated;
// washout filtering selects patients, it does not rewrite them.
type Patient struct {
	PatientID      int64
	IndexDate      time.Time
	ReceiptID      int64
	ReceiptMonth   string
	DiseaseCode    string
	PrimaryFlag    int32
	OutcomeCode    string
	SuspectedFlag  int32
	QualifyingRows int64
}

// ResolveIndexDates determines each patient's index date from the
// concatenated matched diagnosis rows: the earliest qualifying event date,
// ties broken by earliest reporting period, both via one sort. Patients
// whose index date falls outside [periodStart, periodEnd] are dropped in a
// second pass. Zero input rows fail loudly; an empty match set upstream
// means the code mapping or the archives are broken, not that the study
// has no patients.
func ResolveIndexDates(rows []archive.DiagnosisRow, periodStart, periodEnd time.Time, log *zap.Logger) ([]Patient, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no qualifying diagnosis rows to resolve")
	}

	type dated struct {
		archive.DiagnosisRow
		date time.Time
	}

	parsed := make([]dated, 0, len(rows))
	badDates := 0
	for _, row := range rows {
		d, err := archive.ParseDate(row.StartDate)
		if err != nil {
			badDates++
			continue
		}
		parsed = append(parsed, dated{DiagnosisRow: row, date: d})
	}
	if badDates > 0 {
		log.Warn("dropped diagnosis rows with unparseable event dates",
			zap.Int("rows", badDates))
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("all %d qualifying rows had unparseable event dates", len(rows))
	}

	sort.Slice(parsed, func(i, j int) bool {
		a, b := parsed[i], parsed[j]
		if a.PatientID != b.PatientID {
			return a.PatientID < b.PatientID
		}
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		return a.ReceiptMonth < b.ReceiptMonth
	})

	var patients []Patient
	for i := 0; i < len(parsed); {
		first := parsed[i]
		j := i
		for j < len(parsed) && parsed[j].PatientID == first.PatientID {
			j++
		}
		patients = append(patients, Patient{
			PatientID:      first.PatientID,
			IndexDate:      first.date,
			ReceiptID:      first.ReceiptID,
			ReceiptMonth:   first.ReceiptMonth,
			DiseaseCode:    first.DiseaseCode,
			PrimaryFlag:    first.PrimaryFlag,
			OutcomeCode:    first.OutcomeCode,
			SuspectedFlag:  first.SuspectedFlag,
			QualifyingRows: int64(j - i),
		})
		i = j
	}

	// Study-period filter is a separate pass over resolved index dates.
	// A patient whose first qualifying event predates the study period is
	// excluded entirely, not re-anchored to a later event.
	inPeriod := patients[:0]
	for _, p := range patients {
		if p.IndexDate.Before(periodStart) || p.IndexDate.After(periodEnd) {
			continue
		}
		inPeriod = append(inPeriod, p)
	}

	log.Info("resolved index dates",
		zap.Int("patients_resolved", len(patients)),
		zap.Int("patients_in_period", len(inPeriod)))
	return inPeriod, nil
}

// PatientIDs returns the patient-id membership set of a cohort.
func PatientIDs(patients []Patient) map[int64]bool {
	ids := make(map[int64]bool, len(patients))
	for _, p := range patients {
		ids[p.PatientID] = true
	}
	return ids
}

// IndexDates returns a patient-id → index-date lookup.
func IndexDates(patients []Patient) map[int64]time.Time {
	dates := make(map[int64]time.Time, len(patients))
	for _, p := range patients {
		dates[p.PatientID] = p.IndexDate
	}
	return dates
}
