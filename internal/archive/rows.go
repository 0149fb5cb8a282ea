package archive

import (
	"fmt"
	"time"
)

// Archive filename prefixes. One file per reporting period, named
// <prefix><YYYYMM>.parquet.
const (
	DiagnosisPrefix    = "diagnosis_"
	DispensingPrefix   = "dispensing_"
	DispenseDatePrefix = "dispensing_date_"
)

// dateLayout is the date format carried in claim archives.
const dateLayout = "2006/01/02"

// ParseDate parses a claim archive date field.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse claim date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date in the claim archive format.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// DiagnosisRow is one diagnosis line from a period-partitioned claims
// archive. treatment_start_date anchors index-date resolution; the flag
// fields are carried as provenance.
type DiagnosisRow struct {
	PatientID     int64  `parquet:"patient_id"`
	ReceiptID     int64  `parquet:"receipt_id"`
	ReceiptMonth  string `parquet:"receipt_month"`
	DiseaseCode   string `parquet:"disease_code"`
	StartDate     string `parquet:"treatment_start_date"`
	PrimaryFlag   int32  `parquet:"primary_diagnosis_flag"`
	OutcomeCode   string `parquet:"outcome_code"`
	SuspectedFlag int32  `parquet:"suspected_flag"`
}

// DispensingRow is one drug-dispensing line. Its date lives in a separate
// dispensing-date archive; the two are joined on (receipt_id, line_no).
type DispensingRow struct {
	PatientID int64  `parquet:"patient_id"`
	ReceiptID int64  `parquet:"receipt_id"`
	LineNo    int32  `parquet:"line_no"`
	DrugCode  string `parquet:"drug_code"`
}

// DispenseDateRow carries the dispense date for one dispensing line.
type DispenseDateRow struct {
	PatientID    int64  `parquet:"patient_id"`
	ReceiptID    int64  `parquet:"receipt_id"`
	LineNo       int32  `parquet:"line_no"`
	DispenseDate string `parquet:"dispense_date"`
}

// LineKey joins a dispensing line to its date row. line_no is only unique
// within a receipt, so the key is composite.
type LineKey struct {
	ReceiptID int64
	LineNo    int32
}

// Key returns the join key of a dispensing row.
func (r DispensingRow) Key() LineKey {
	return LineKey{ReceiptID: r.ReceiptID, LineNo: r.LineNo}
}

// Key returns the join key of a dispense-date row.
func (r DispenseDateRow) Key() LineKey {
	return LineKey{ReceiptID: r.ReceiptID, LineNo: r.LineNo}
}

// Required returns the leaf columns an archive family must carry. Archives
// missing any of these are rejected at open, not worked around.
func Required(prefix string) []string {
	return requiredColumns[prefix]
}

var requiredColumns = map[string][]string{
	DiagnosisPrefix: {
		"patient_id", "receipt_id", "receipt_month", "disease_code",
		"treatment_start_date", "primary_diagnosis_flag", "outcome_code",
		"suspected_flag",
	},
	DispensingPrefix: {
		"patient_id", "receipt_id", "line_no", "drug_code",
	},
	DispenseDatePrefix: {
		"patient_id", "receipt_id", "line_no", "dispense_date",
	},
}
