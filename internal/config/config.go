package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Date layouts accepted in the study config. YAML decoders sometimes hand
// unquoted dates back as full timestamps, so both forms are parsed.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05 -0700 MST",
	time.RFC3339,
}

// Study holds the time parameters of the study protocol.
type Study struct {
	PeriodStart           string `mapstructure:"period_start"`
	PeriodEnd             string `mapstructure:"period_end"`
	WashoutWeeks          []int  `mapstructure:"washout_weeks"`
	AssessmentWindowWeeks int    `mapstructure:"assessment_window_weeks"`
}

// Target identifies the diagnosis that defines cohort entry.
type Target struct {
	ICD10Code string `mapstructure:"icd10_code"`
	ICD10Kind string `mapstructure:"icd10_kind"`
}

// DrugClasses maps the two treatment intents to ATC codes. Claim codes are
// always resolved through the drug master, never written here directly.
type DrugClasses struct {
	ReductionATC  []string `mapstructure:"reduction_atc"`
	AbstinenceATC []string `mapstructure:"abstinence_atc"`
}

// Paths locates reference masters, claim archives and outputs.
type Paths struct {
	DiagnosisMaster string `mapstructure:"diagnosis_master"`
	DrugMaster      string `mapstructure:"drug_master"`
	DiagnosisDir    string `mapstructure:"diagnosis_dir"`
	DispensingDir   string `mapstructure:"dispensing_dir"`
	DispenseDateDir string `mapstructure:"dispense_date_dir"`
	EnrollmentFile  string `mapstructure:"enrollment_file"`
	ExamFile        string `mapstructure:"exam_file"`
	OutputDir       string `mapstructure:"output_dir"`
}

// Config is the full study configuration. Components receive it (or slices
// of it) explicitly; nothing reads configuration from process-wide state.
type Config struct {
	Study         Study               `mapstructure:"study"`
	Target        Target              `mapstructure:"target"`
	DrugClasses   DrugClasses         `mapstructure:"drug_classes"`
	Comorbidities map[string][]string `mapstructure:"comorbidities"`
	Paths         Paths               `mapstructure:"paths"`

	// RowCap bounds matched rows kept per archive. 0 means derive from
	// available memory at startup.
	RowCap int64 `mapstructure:"row_cap"`

	periodStart time.Time
	periodEnd   time.Time
}

// Load reads and validates the study configuration file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("COHORTTOOL")
	v.AutomaticEnv()

	v.SetDefault("study.period_start", "2014-04-01")
	v.SetDefault("study.period_end", "2023-09-30")
	// First entry is the primary cohort; the rest are sensitivity variants.
	v.SetDefault("study.washout_weeks", []int{52, 26, 156})
	v.SetDefault("study.assessment_window_weeks", 52)
	v.SetDefault("target.icd10_kind", "1")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD)", s)
}

func (c *Config) validate() error {
	var err error
	if c.periodStart, err = parseDate(c.Study.PeriodStart); err != nil {
		return fmt.Errorf("study.period_start: %w", err)
	}
	if c.periodEnd, err = parseDate(c.Study.PeriodEnd); err != nil {
		return fmt.Errorf("study.period_end: %w", err)
	}
	if !c.periodEnd.After(c.periodStart) {
		return fmt.Errorf("study period end %s is not after start %s",
			c.Study.PeriodEnd, c.Study.PeriodStart)
	}
	if len(c.Study.WashoutWeeks) == 0 {
		return fmt.Errorf("study.washout_weeks must list at least one variant")
	}
	for _, w := range c.Study.WashoutWeeks {
		if w <= 0 {
			return fmt.Errorf("study.washout_weeks: %d weeks is not a valid washout", w)
		}
	}
	if c.Study.AssessmentWindowWeeks <= 0 {
		return fmt.Errorf("study.assessment_window_weeks must be positive, got %d",
			c.Study.AssessmentWindowWeeks)
	}
	if c.Target.ICD10Code == "" {
		return fmt.Errorf("target.icd10_code is required")
	}
	if c.Target.ICD10Kind == "" {
		return fmt.Errorf("target.icd10_kind is required")
	}
	if len(c.DrugClasses.ReductionATC) == 0 {
		return fmt.Errorf("drug_classes.reduction_atc must list at least one ATC code")
	}
	if len(c.DrugClasses.AbstinenceATC) == 0 {
		return fmt.Errorf("drug_classes.abstinence_atc must list at least one ATC code")
	}
	for name, prefixes := range c.Comorbidities {
		if len(prefixes) == 0 {
			return fmt.Errorf("comorbidities.%s lists no ICD10 prefixes", name)
		}
	}
	if c.RowCap < 0 {
		return fmt.Errorf("row_cap must not be negative, got %d", c.RowCap)
	}
	return nil
}

// PeriodStart returns the parsed study period start date.
func (c *Config) PeriodStart() time.Time { return c.periodStart }

// PeriodEnd returns the parsed study period end date.
func (c *Config) PeriodEnd() time.Time { return c.periodEnd }

// ComorbidityNames returns the configured comorbidity names in a fixed order
// so output columns and summaries are deterministic.
func (c *Config) ComorbidityNames() []string {
	names := make([]string, 0, len(c.Comorbidities))
	for name := range c.Comorbidities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
