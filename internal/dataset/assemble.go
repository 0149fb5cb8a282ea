// Package dataset joins demographics, treatment groups, comorbidity flags
// and time-windowed exam observations into per-cohort analysis tables.
package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cohorttool/internal/archive"
	"cohorttool/internal/cohort"
	"cohorttool/internal/comorbidity"
	"cohorttool/internal/treatment"
)

// LoadEnrollment streams the enrollment table filtered to the patient set.
func LoadEnrollment(path string, patientIDs map[int64]bool, chunkRows int) ([]EnrollmentRow, error) {
	rows, _, err := archive.Scan(path, enrollmentColumns,
		func(r EnrollmentRow) bool { return patientIDs[r.PatientID] }, 0, chunkRows)
	if err != nil {
		return nil, fmt.Errorf("enrollment table %s: %w", path, err)
	}
	return rows, nil
}

// AgeAtIndex computes age in years at the index date from a YYYYMM birth
// month. Only the birth year enters the calculation; the claims data
// carries no birth day.
func AgeAtIndex(birthMonth string, indexDate time.Time) *int32 {
	if len(birthMonth) < 4 {
		return nil
	}
	birthYear, err := strconv.Atoi(birthMonth[:4])
	if err != nil {
		return nil
	}
	age := int32(indexDate.Year() - birthYear)
	return &age
}

// AssembleBaseline builds the baseline table for one cohort. Patients with
// no enrollment entry keep nil demographics rather than being dropped.
func AssembleBaseline(patients []cohort.Patient, enrollment []EnrollmentRow, res *treatment.Result, flags *comorbidity.Flags) []BaselineRow {
	demo := make(map[int64]EnrollmentRow, len(enrollment))
	for _, e := range enrollment {
		demo[e.PatientID] = e
	}

	rows := make([]BaselineRow, 0, len(patients))
	for _, p := range patients {
		group := res.Groups[p.PatientID]
		if group == 0 {
			group = treatment.GroupUndetermined
		}
		row := BaselineRow{
			PatientID:          p.PatientID,
			IndexDate:          archive.FormatDate(p.IndexDate),
			TreatmentGroup:     int32(group),
			TreatmentGroupName: group.String(),
			Comorbidities:      flags.For(p.PatientID),
		}
		if first, ok := res.FirstDispense[p.PatientID]; ok {
			s := archive.FormatDate(first)
			row.FirstDispenseDate = &s
		}
		if e, ok := demo[p.PatientID]; ok {
			row.AgeAtIndex = AgeAtIndex(e.BirthMonth, p.IndexDate)
			row.BirthMonth = ptr(e.BirthMonth)
			row.SexCode = ptr(e.SexCode)
			row.RelationshipCode = ptr(e.RelationshipCode)
			row.InsurerKind = ptr(e.InsurerKind)
			row.RegionCode = ptr(e.RegionCode)
		}
		rows = append(rows, row)
	}
	return rows
}

func ptr(s string) *string { return &s }

// timePoint is a named observation window relative to the index date.
// Offsets use AddDate so calendar months and years are respected.
type timePoint struct {
	name        string
	start       func(index time.Time) time.Time
	end         func(index time.Time) time.Time
	includesEnd bool
}

// Time points of the longitudinal dataset. before_index anchors on the
// index date looking back two years and excludes the index day itself;
// the follow-up points bracket scheduled exams around 1 and 2 years out.
var timePoints = []timePoint{
	{
		name:  "before_index",
		start: func(t time.Time) time.Time { return t.AddDate(-2, 0, 0) },
		end:   func(t time.Time) time.Time { return t },
	},
	{
		name:        "after_index",
		start:       func(t time.Time) time.Time { return t },
		end:         func(t time.Time) time.Time { return t.AddDate(0, 6, 0) },
		includesEnd: true,
	},
	{
		name:        "year1",
		start:       func(t time.Time) time.Time { return t.AddDate(0, 9, 0) },
		end:         func(t time.Time) time.Time { return t.AddDate(0, 18, 0) },
		includesEnd: true,
	},
	{
		name:        "year2",
		start:       func(t time.Time) time.Time { return t.AddDate(0, 21, 0) },
		end:         func(t time.Time) time.Time { return t.AddDate(0, 30, 0) },
		includesEnd: true,
	},
}

func (tp timePoint) contains(index, exam time.Time) bool {
	if exam.Before(tp.start(index)) {
		return false
	}
	end := tp.end(index)
	if tp.includesEnd {
		return !exam.After(end)
	}
	return exam.Before(end)
}

// daysFromAnchor measures how far an exam sits from its time point's
// anchor: days before index for before_index, days after index otherwise.
func (tp timePoint) daysFromAnchor(index, exam time.Time) int32 {
	diff := exam.Sub(index)
	if tp.name == "before_index" {
		diff = index.Sub(exam)
	}
	return int32(diff.Hours() / 24)
}

// ExamTimeSeries aligns exam observations to the named time points and
// keeps, per patient and time point, the observation closest to the
// anchor. Patients without exams in any window simply contribute no rows.
func ExamTimeSeries(path string, patients []cohort.Patient, chunkRows int, log *zap.Logger) ([]TimeSeriesRow, error) {
	ids := cohort.PatientIDs(patients)
	indexDates := cohort.IndexDates(patients)

	exams, _, err := archive.Scan(path, examColumns,
		func(r ExamRow) bool { return ids[r.PatientID] }, 0, chunkRows)
	if err != nil {
		return nil, fmt.Errorf("exam table %s: %w", path, err)
	}

	type slot struct {
		row  TimeSeriesRow
		days int32
	}
	best := make(map[string]slot)

	badDates := 0
	for _, exam := range exams {
		examDate, err := archive.ParseDate(exam.ExamDate)
		if err != nil {
			badDates++
			continue
		}
		index := indexDates[exam.PatientID]
		for _, tp := range timePoints {
			if !tp.contains(index, examDate) {
				continue
			}
			days := tp.daysFromAnchor(index, examDate)
			key := fmt.Sprintf("%d\t%s", exam.PatientID, tp.name)
			if cur, ok := best[key]; ok && cur.days <= days {
				continue
			}
			best[key] = slot{
				row: TimeSeriesRow{
					PatientID:      exam.PatientID,
					TimePoint:      tp.name,
					IndexDate:      archive.FormatDate(index),
					ExamDate:       exam.ExamDate,
					DaysFromAnchor: days,
					GammaGTP:       exam.GammaGTP,
					AST:            exam.AST,
					ALT:            exam.ALT,
					DrinkingHabit:  exam.DrinkingHabit,
				},
				days: days,
			}
		}
	}
	if badDates > 0 {
		log.Warn("dropped exam rows with unparseable dates", zap.Int("rows", badDates))
	}

	rows := make([]TimeSeriesRow, 0, len(best))
	for _, s := range best {
		rows = append(rows, s.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PatientID != rows[j].PatientID {
			return rows[i].PatientID < rows[j].PatientID
		}
		return rows[i].TimePoint < rows[j].TimePoint
	})
	return rows, nil
}
