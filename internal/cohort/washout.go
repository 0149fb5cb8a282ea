package cohort

import (
	"fmt"
	"time"
)

// Washout keeps patients whose index date leaves at least the given number
// of weeks of observable history after the study period start. It is a
// minimum-lookback requirement: patients indexed too early in the period
// cannot demonstrate a clean washout and are excluded.
//
// Pure function of its inputs. Each cohort variant is computed
// independently from the full patient set; cohorts are never derived by
// re-filtering one another.
func Washout(patients []Patient, weeks int, periodStart time.Time) []Patient {
	cutoff := periodStart.AddDate(0, 0, weeks*7)
	out := make([]Patient, 0, len(patients))
	for _, p := range patients {
		if p.IndexDate.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Variant names a washout cohort. Weeks == 0 marks the unfiltered
// all-patients cohort.
type Variant struct {
	Name  string
	Weeks int
}

// Variants builds the cohort variant list for a set of washout lengths:
// the primary cohort uses the first configured length, each further length
// becomes a sensitivity cohort, and the unfiltered set is always kept.
func Variants(washoutWeeks []int) []Variant {
	variants := make([]Variant, 0, len(washoutWeeks)+1)
	for i, weeks := range washoutWeeks {
		name := "primary"
		if i > 0 {
			name = fmt.Sprintf("sensitivity%d", i)
		}
		variants = append(variants, Variant{Name: name, Weeks: weeks})
	}
	variants = append(variants, Variant{Name: "all", Weeks: 0})
	return variants
}
