// Package treatment assigns each cohort patient a treatment group from the
// drug-dispensing archives: reduction-class dispensing within the
// assessment window, abstinence-class dispensing, or undetermined.
package treatment

import (
	"time"

	"go.uber.org/zap"

	"cohorttool/internal/archive"
	"cohorttool/internal/cohort"
)

// Group is a mutually exclusive treatment category.
type Group int32

const (
	GroupReduction    Group = 1
	GroupAbstinence   Group = 2
	GroupUndetermined Group = 3
)

func (g Group) String() string {
	switch g {
	case GroupReduction:
		return "reduction"
	case GroupAbstinence:
		return "abstinence"
	default:
		return "undetermined"
	}
}

// Classifier holds the resolved drug-class code sets and the assessment
// window. Code sets come from the drug master via the code map; raw ATC
// codes or integer claim codes never reach the join.
type Classifier struct {
	reduction   map[string]bool
	abstinence  map[string]bool
	windowWeeks int
	rowCap      int64
	chunkRows   int
	log         *zap.Logger
}

// Stats reports how the dispensing archives were consumed.
type Stats struct {
	PairsProcessed int
	PairsSkipped   int
	EventRows      int64
	JoinedRows     int64
	InWindowRows   int64
}

// Result holds per-patient classification for one cohort.
type Result struct {
	Groups        map[int64]Group
	FirstDispense map[int64]time.Time
	Stats         Stats
}

// NewClassifier builds a classifier from resolved claim-code sets.
func NewClassifier(reductionCodes, abstinenceCodes []string, windowWeeks int, rowCap int64, chunkRows int, log *zap.Logger) *Classifier {
	return &Classifier{
		reduction:   toSet(reductionCodes),
		abstinence:  toSet(abstinenceCodes),
		windowWeeks: windowWeeks,
		rowCap:      rowCap,
		chunkRows:   chunkRows,
		log:         log,
	}
}

func toSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

// Classify scans every dispensing archive pair and assigns each cohort
// patient a treatment group.
//
// Per pair: dispensing rows are filtered to cohort patients carrying a
// classed drug code, inner-joined to their date rows on (receipt_id,
// line_no) — a dispensing line without a date row is dropped, never treated
// as undated — then kept only when the dispense date falls inside
// [index date, index date + window]. Flags aggregate across pairs by
// boolean OR, so a patient flagged in any one period stays flagged.
//
// Reduction always beats abstinence when both appear in the window.
// Patients with no in-window classed dispensing anywhere, and cohorts with
// no usable dispensing data at all, come out undetermined.
func (c *Classifier) Classify(pairs []archive.Pair, patients []cohort.Patient) *Result {
	res := &Result{
		Groups:        make(map[int64]Group, len(patients)),
		FirstDispense: make(map[int64]time.Time),
	}

	ids := cohort.PatientIDs(patients)
	indexDates := cohort.IndexDates(patients)
	windowDays := c.windowWeeks * 7

	hasReduction := make(map[int64]bool)
	hasAbstinence := make(map[int64]bool)

	for _, pair := range pairs {
		events, capped, err := archive.Scan(pair.EventPath, archive.Required(archive.DispensingPrefix),
			func(r archive.DispensingRow) bool {
				return ids[r.PatientID] && (c.reduction[r.DrugCode] || c.abstinence[r.DrugCode])
			}, c.rowCap, c.chunkRows)
		if err != nil {
			res.Stats.PairsSkipped++
			c.log.Warn("skipping dispensing archive pair",
				zap.String("archive", pair.EventPath), zap.Error(err))
			continue
		}
		if capped {
			c.log.Warn("row cap truncated dispensing matches; results from this archive are incomplete",
				zap.String("archive", pair.EventPath), zap.Int64("row_cap", c.rowCap))
		}
		res.Stats.EventRows += int64(len(events))
		if len(events) == 0 {
			res.Stats.PairsProcessed++
			continue
		}

		// Only date rows for lines we actually matched are kept in memory.
		wanted := make(map[archive.LineKey]bool, len(events))
		for _, e := range events {
			wanted[e.Key()] = true
		}
		dateRows, capped, err := archive.Scan(pair.DatePath, archive.Required(archive.DispenseDatePrefix),
			func(r archive.DispenseDateRow) bool {
				return ids[r.PatientID] && wanted[r.Key()]
			}, c.rowCap, c.chunkRows)
		if err != nil {
			res.Stats.PairsSkipped++
			c.log.Warn("skipping dispensing archive pair",
				zap.String("archive", pair.DatePath), zap.Error(err))
			continue
		}
		if capped {
			c.log.Warn("row cap truncated dispense-date matches; results from this archive are incomplete",
				zap.String("archive", pair.DatePath), zap.Int64("row_cap", c.rowCap))
		}

		dates := make(map[archive.LineKey]time.Time, len(dateRows))
		for _, r := range dateRows {
			d, err := archive.ParseDate(r.DispenseDate)
			if err != nil {
				continue
			}
			dates[r.Key()] = d
		}

		for _, e := range events {
			dispensed, ok := dates[e.Key()]
			if !ok {
				continue
			}
			res.Stats.JoinedRows++

			index := indexDates[e.PatientID]
			upper := index.AddDate(0, 0, windowDays)
			if dispensed.Before(index) || dispensed.After(upper) {
				continue
			}
			res.Stats.InWindowRows++

			if c.reduction[e.DrugCode] {
				hasReduction[e.PatientID] = true
			}
			if c.abstinence[e.DrugCode] {
				hasAbstinence[e.PatientID] = true
			}
			if first, ok := res.FirstDispense[e.PatientID]; !ok || dispensed.Before(first) {
				res.FirstDispense[e.PatientID] = dispensed
			}
		}
		res.Stats.PairsProcessed++
	}

	for _, p := range patients {
		switch {
		case hasReduction[p.PatientID]:
			res.Groups[p.PatientID] = GroupReduction
		case hasAbstinence[p.PatientID]:
			res.Groups[p.PatientID] = GroupAbstinence
		default:
			res.Groups[p.PatientID] = GroupUndetermined
		}
	}

	c.logDistribution(res)
	return res
}

func (c *Classifier) logDistribution(res *Result) {
	counts := make(map[Group]int)
	for _, g := range res.Groups {
		counts[g]++
	}
	c.log.Info("treatment group distribution",
		zap.Int("reduction", counts[GroupReduction]),
		zap.Int("abstinence", counts[GroupAbstinence]),
		zap.Int("undetermined", counts[GroupUndetermined]),
		zap.Int("pairs_processed", res.Stats.PairsProcessed),
		zap.Int("pairs_skipped", res.Stats.PairsSkipped),
		zap.Int64("in_window_rows", res.Stats.InWindowRows))
}
