package dataset

// EnrollmentRow is one entry of the demographic/enrollment table.
type EnrollmentRow struct {
	PatientID        int64  `parquet:"patient_id"`
	BirthMonth       string `parquet:"birth_month"` // YYYYMM
	SexCode          string `parquet:"sex_code"`
	RelationshipCode string `parquet:"relationship_code"`
	InsurerKind      string `parquet:"insurer_kind"`
	RegionCode       string `parquet:"region_code"`
}

var enrollmentColumns = []string{
	"patient_id", "birth_month", "sex_code", "relationship_code",
	"insurer_kind", "region_code",
}

// ExamRow is one periodic exam/interview observation.
type ExamRow struct {
	PatientID     int64    `parquet:"patient_id"`
	ExamDate      string   `parquet:"exam_date"`
	GammaGTP      *float64 `parquet:"gamma_gtp,optional"`
	AST           *float64 `parquet:"ast,optional"`
	ALT           *float64 `parquet:"alt,optional"`
	DrinkingHabit *string  `parquet:"drinking_habit_code,optional"`
}

var examColumns = []string{"patient_id", "exam_date"}

// BaselineRow is one patient in a cohort's baseline analysis table:
// demographics, treatment group and comorbidity flags at index.
// Comorbidities are stored as the list of flagged category names so the
// category set stays configurable without changing the table schema.
type BaselineRow struct {
	PatientID          int64    `parquet:"patient_id"`
	IndexDate          string   `parquet:"index_date"`
	TreatmentGroup     int32    `parquet:"treatment_group"`
	TreatmentGroupName string   `parquet:"treatment_group_name"`
	FirstDispenseDate  *string  `parquet:"first_dispense_date,optional"`
	AgeAtIndex         *int32   `parquet:"age_at_index,optional"`
	BirthMonth         *string  `parquet:"birth_month,optional"`
	SexCode            *string  `parquet:"sex_code,optional"`
	RelationshipCode   *string  `parquet:"relationship_code,optional"`
	InsurerKind        *string  `parquet:"insurer_kind,optional"`
	RegionCode         *string  `parquet:"region_code,optional"`
	Comorbidities      []string `parquet:"comorbidities,list"`
}

// TimeSeriesRow is one exam observation aligned to a named time point
// relative to the patient's index date.
type TimeSeriesRow struct {
	PatientID      int64    `parquet:"patient_id"`
	TimePoint      string   `parquet:"time_point"`
	IndexDate      string   `parquet:"index_date"`
	ExamDate       string   `parquet:"exam_date"`
	DaysFromAnchor int32    `parquet:"days_from_anchor"`
	GammaGTP       *float64 `parquet:"gamma_gtp,optional"`
	AST            *float64 `parquet:"ast,optional"`
	ALT            *float64 `parquet:"alt,optional"`
	DrinkingHabit  *string  `parquet:"drinking_habit_code,optional"`
}
