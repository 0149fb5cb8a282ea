package cohort

import (
	"fmt"

	"cohorttool/internal/archive"
)

// Row is the on-disk form of a cohort table entry: the index-dated patient
// plus the provenance of the index event.
type Row struct {
	PatientID      int64  `parquet:"patient_id"`
	IndexDate      string `parquet:"index_date"`
	ReceiptID      int64  `parquet:"first_receipt_id"`
	ReceiptMonth   string `parquet:"first_receipt_month"`
	DiseaseCode    string `parquet:"first_disease_code"`
	PrimaryFlag    int32  `parquet:"first_primary_diagnosis_flag"`
	OutcomeCode    string `parquet:"first_outcome_code"`
	SuspectedFlag  int32  `parquet:"first_suspected_flag"`
	QualifyingRows int64  `parquet:"qualifying_rows"`
}

// WriteTable writes a cohort to a parquet file.
func WriteTable(path string, patients []Patient) error {
	rows := make([]Row, len(patients))
	for i, p := range patients {
		rows[i] = Row{
			PatientID:      p.PatientID,
			IndexDate:      archive.FormatDate(p.IndexDate),
			ReceiptID:      p.ReceiptID,
			ReceiptMonth:   p.ReceiptMonth,
			DiseaseCode:    p.DiseaseCode,
			PrimaryFlag:    p.PrimaryFlag,
			OutcomeCode:    p.OutcomeCode,
			SuspectedFlag:  p.SuspectedFlag,
			QualifyingRows: p.QualifyingRows,
		}
	}
	return archive.WriteTable(path, rows)
}

// ReadTable loads a cohort written by WriteTable.
func ReadTable(path string) ([]Patient, error) {
	rows, err := archive.ReadTable[Row](path)
	if err != nil {
		return nil, err
	}
	patients := make([]Patient, len(rows))
	for i, r := range rows {
		d, err := archive.ParseDate(r.IndexDate)
		if err != nil {
			return nil, fmt.Errorf("cohort table %s row %d: %w", path, i, err)
		}
		patients[i] = Patient{
			PatientID:      r.PatientID,
			IndexDate:      d,
			ReceiptID:      r.ReceiptID,
			ReceiptMonth:   r.ReceiptMonth,
			DiseaseCode:    r.DiseaseCode,
			PrimaryFlag:    r.PrimaryFlag,
			OutcomeCode:    r.OutcomeCode,
			SuspectedFlag:  r.SuspectedFlag,
			QualifyingRows: r.QualifyingRows,
		}
	}
	return patients, nil
}
