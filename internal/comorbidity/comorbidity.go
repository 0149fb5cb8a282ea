// Package comorbidity flags cohort patients for configured comorbidity
// categories from the diagnosis archives. Any matching diagnosis at any
// time counts; there is no time window.
package comorbidity

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"cohorttool/internal/archive"
	"cohorttool/internal/codemap"
)

// Category is one comorbidity with its resolved claim-code set.
type Category struct {
	Name  string
	codes map[string]bool
}

// ResolveCategories turns the configured comorbidity → ICD10-prefix mapping
// into claim-code sets via the disease map's family query. A category whose
// prefixes resolve to nothing is an error: its flags would be false for
// every patient no matter the data.
func ResolveCategories(prefixesByName map[string][]string, kind string, diseases *codemap.DiseaseMap, log *zap.Logger) ([]Category, error) {
	names := make([]string, 0, len(prefixesByName))
	for name := range prefixesByName {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]Category, 0, len(names))
	for _, name := range names {
		var codes []string
		for _, prefix := range prefixesByName[name] {
			codes = append(codes, diseases.ClaimCodesByPrefix(prefix, kind)...)
		}
		if len(codes) == 0 {
			return nil, fmt.Errorf("comorbidity %s: no claim codes resolved from prefixes %v",
				name, prefixesByName[name])
		}
		log.Info("resolved comorbidity category",
			zap.String("comorbidity", name), zap.Int("claim_codes", len(codes)))
		categories = append(categories, Category{Name: name, codes: codemap.Set(codes)})
	}
	return categories, nil
}

// Flags holds per-patient comorbidity membership. A patient with no
// matching diagnosis rows anywhere simply appears in no set; every flag
// defaults to false.
type Flags struct {
	categories []Category
	flagged    map[string]map[int64]bool
}

// Names returns the category names in output order.
func (f *Flags) Names() []string {
	names := make([]string, len(f.categories))
	for i, c := range f.categories {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the patient is flagged for the named comorbidity.
func (f *Flags) Has(name string, patientID int64) bool {
	return f.flagged[name][patientID]
}

// For returns the sorted list of comorbidity names flagged for a patient.
func (f *Flags) For(patientID int64) []string {
	var names []string
	for _, c := range f.categories {
		if f.flagged[c.Name][patientID] {
			names = append(names, c.Name)
		}
	}
	return names
}

// Annotate scans every diagnosis archive and flags patients whose rows
// match a category's claim codes. Evidence aggregates across archives by
// boolean OR, so archive order cannot matter and repeated evidence cannot
// double-count. Unreadable archives are logged and skipped.
func Annotate(paths []string, patientIDs map[int64]bool, categories []Category, rowCap int64, chunkRows, workers int, log *zap.Logger) (*Flags, archive.ScanStats) {
	flagged := make(map[string]map[int64]bool, len(categories))
	for _, c := range categories {
		flagged[c.Name] = make(map[int64]bool)
	}

	// One membership pre-filter across all categories keeps the scan cheap.
	anyCode := make(map[string]bool)
	for _, c := range categories {
		for code := range c.codes {
			anyCode[code] = true
		}
	}

	rows, stats := archive.ScanAll(paths, archive.Required(archive.DiagnosisPrefix),
		func(r archive.DiagnosisRow) bool {
			return patientIDs[r.PatientID] && anyCode[r.DiseaseCode]
		}, rowCap, chunkRows, workers, log)

	for _, row := range rows {
		for _, c := range categories {
			if c.codes[row.DiseaseCode] {
				flagged[c.Name][row.PatientID] = true
			}
		}
	}

	for _, c := range categories {
		log.Info("comorbidity flagged",
			zap.String("comorbidity", c.Name),
			zap.Int("patients", len(flagged[c.Name])))
	}
	return &Flags{categories: categories, flagged: flagged}, stats
}
