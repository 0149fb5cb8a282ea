// Package pgload loads produced baseline datasets into PostgreSQL so they
// can be reviewed with ad-hoc SQL before statistical analysis.
package pgload

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"cohorttool/internal/archive"
	"cohorttool/internal/dataset"
)

const createBaselineTable = `
CREATE TABLE IF NOT EXISTS %s (
    patient_id            BIGINT NOT NULL,
    index_date            DATE   NOT NULL,
    treatment_group       INT    NOT NULL,
    treatment_group_name  TEXT   NOT NULL,
    first_dispense_date   DATE,
    age_at_index          INT,
    birth_month           TEXT,
    sex_code              TEXT,
    relationship_code     TEXT,
    insurer_kind          TEXT,
    region_code           TEXT,
    comorbidities         TEXT[] NOT NULL
)`

// LoadBaseline loads one baseline parquet file into the given table,
// creating the table when needed. Rows append; reloading into a fresh
// table is the caller's concern.
func LoadBaseline(ctx context.Context, parquetPath, connStr, table string, log *zap.Logger) (int64, error) {
	f, err := os.Open(parquetPath)
	if err != nil {
		return 0, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[dataset.BaselineRow](f)
	defer reader.Close()

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return 0, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}

	ident := pgx.Identifier{table}
	if _, err := pool.Exec(ctx, fmt.Sprintf(createBaselineTable, ident.Sanitize())); err != nil {
		return 0, fmt.Errorf("create table %s: %w", table, err)
	}

	columns := []string{
		"patient_id", "index_date", "treatment_group", "treatment_group_name",
		"first_dispense_date", "age_at_index", "birth_month", "sex_code",
		"relationship_code", "insurer_kind", "region_code", "comorbidities",
	}

	const readBatch = 8192
	buf := make([]dataset.BaselineRow, readBatch)
	var values [][]any
	for {
		n, readErr := reader.Read(buf)
		for _, row := range buf[:n] {
			indexDate, err := archive.ParseDate(row.IndexDate)
			if err != nil {
				return 0, fmt.Errorf("row for patient %d: %w", row.PatientID, err)
			}
			var firstDispense *time.Time
			if row.FirstDispenseDate != nil {
				d, err := archive.ParseDate(*row.FirstDispenseDate)
				if err != nil {
					return 0, fmt.Errorf("row for patient %d: %w", row.PatientID, err)
				}
				firstDispense = &d
			}
			comorbidities := row.Comorbidities
			if comorbidities == nil {
				comorbidities = []string{}
			}
			values = append(values, []any{
				row.PatientID, indexDate, row.TreatmentGroup, row.TreatmentGroupName,
				firstDispense, row.AgeAtIndex, row.BirthMonth, row.SexCode,
				row.RelationshipCode, row.InsurerKind, row.RegionCode, comorbidities,
			})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, fmt.Errorf("read parquet rows: %w", readErr)
		}
	}

	copied, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(values))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}

	log.Info("loaded baseline dataset into postgres",
		zap.String("table", table),
		zap.Int64("rows", copied))
	return copied, nil
}
