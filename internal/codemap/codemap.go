// Package codemap resolves clinical coding-system codes (ICD10 diagnoses,
// ATC drug codes) to the internal claim codes used in the archives.
//
// Claim codes are strings everywhere. The source data has carried drug
// identifiers as ATC codes, claim-code strings and claim-code integers at
// different times, and a join against the wrong representation matches
// nothing without failing. This package is the single boundary where codes
// are normalized; nothing downstream re-parses or re-types them.
package codemap

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

type diagnosisMasterRow struct {
	ICD10Code   string `parquet:"icd10_code"`
	ICD10Kind   string `parquet:"icd10_kind"`
	ClaimCode   string `parquet:"claim_code"`
	DiseaseName string `parquet:"disease_name"`
}

type drugMasterRow struct {
	ClaimCode   string `parquet:"claim_code"`
	ATCCode     string `parquet:"atc_code"`
	BrandName   string `parquet:"brand_name"`
	GenericName string `parquet:"generic_name"`
}

// DiseaseMap resolves ICD10 codes to claim disease codes.
type DiseaseMap struct {
	rows  []diagnosisMasterRow
	exact map[string][]string // "code\tkind" → claim codes
}

// DrugMap resolves ATC codes to claim drug codes.
type DrugMap struct {
	byATC map[string][]string
}

func readMaster[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open master table: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read master table: %w", err)
	}
	return rows[:n], nil
}

func exactKey(code, kind string) string {
	return code + "\t" + kind
}

// LoadDiseaseMap loads the ICD10 reference master. Load failure is fatal to
// the run; there is no way to scan diagnosis archives without it.
func LoadDiseaseMap(path string, log *zap.Logger) (*DiseaseMap, error) {
	rows, err := readMaster[diagnosisMasterRow](path)
	if err != nil {
		return nil, fmt.Errorf("diagnosis master %s: %w", path, err)
	}

	m := &DiseaseMap{exact: make(map[string][]string)}
	for _, row := range rows {
		code := strings.TrimSpace(row.ICD10Code)
		claim := strings.TrimSpace(row.ClaimCode)
		if code == "" || claim == "" {
			continue
		}
		row.ICD10Code = code
		row.ClaimCode = claim
		m.rows = append(m.rows, row)
		key := exactKey(code, strings.TrimSpace(row.ICD10Kind))
		m.exact[key] = append(m.exact[key], claim)
	}

	log.Info("loaded diagnosis master",
		zap.String("path", path), zap.Int("entries", len(m.rows)))
	return m, nil
}

// ClaimCodes returns the claim disease codes mapped to exactly
// (icd10Code, kind), deduplicated and sorted.
func (m *DiseaseMap) ClaimCodes(icd10Code, kind string) []string {
	return dedup(m.exact[exactKey(icd10Code, kind)])
}

// ClaimCodesByPrefix returns the claim disease codes for every master entry
// whose ICD10 code starts with prefix, restricted to the given kind. This
// is the family query used for comorbidity categories.
func (m *DiseaseMap) ClaimCodesByPrefix(prefix, kind string) []string {
	var codes []string
	for _, row := range m.rows {
		if row.ICD10Kind == kind && strings.HasPrefix(row.ICD10Code, prefix) {
			codes = append(codes, row.ClaimCode)
		}
	}
	return dedup(codes)
}

// LoadDrugMap loads the drug reference master.
func LoadDrugMap(path string, log *zap.Logger) (*DrugMap, error) {
	rows, err := readMaster[drugMasterRow](path)
	if err != nil {
		return nil, fmt.Errorf("drug master %s: %w", path, err)
	}

	m := &DrugMap{byATC: make(map[string][]string)}
	entries := 0
	for _, row := range rows {
		atc := strings.TrimSpace(row.ATCCode)
		claim := strings.TrimSpace(row.ClaimCode)
		if atc == "" || claim == "" {
			continue
		}
		m.byATC[atc] = append(m.byATC[atc], claim)
		entries++
	}

	log.Info("loaded drug master",
		zap.String("path", path), zap.Int("entries", entries))
	return m, nil
}

// ClaimCodes returns the claim drug codes for one ATC code.
func (m *DrugMap) ClaimCodes(atcCode string) []string {
	return dedup(m.byATC[atcCode])
}

// ClaimCodesForClass resolves a list of ATC codes (one treatment class) to
// the union of their claim codes. An ATC code matching nothing in the
// master is an error: a silently empty class would classify every patient
// as undetermined.
func (m *DrugMap) ClaimCodesForClass(atcCodes []string) ([]string, error) {
	var codes []string
	for _, atc := range atcCodes {
		matched := m.ClaimCodes(atc)
		if len(matched) == 0 {
			return nil, fmt.Errorf("ATC code %s matches no drug master entry", atc)
		}
		codes = append(codes, matched...)
	}
	return dedup(codes), nil
}

// Set builds a membership set from a claim-code list.
func Set(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

func dedup(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(codes))
	var out []string
	for _, c := range codes {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
