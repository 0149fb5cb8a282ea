// cohorttool builds analysis-ready patient cohorts from claims archives:
// it extracts index-dated patients for a target diagnosis, derives washout
// cohorts, classifies treatment groups from dispensing records, flags
// comorbidities and joins demographic and exam data.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cohorttool/internal/codemap"
	"cohorttool/internal/config"
	"cohorttool/internal/hostparams"
	"cohorttool/internal/pgload"
	"cohorttool/internal/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "cohorttool",
		Short:         "claims cohort extraction and analysis dataset builder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "study.yaml", "study configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose (development) logging")

	newLogger := func() (*zap.Logger, error) {
		if verbose {
			return zap.NewDevelopment()
		}
		return zap.NewProduction()
	}

	root.AddCommand(newExtractCmd(&configPath, newLogger))
	root.AddCommand(newDatasetCmd(&configPath, newLogger))
	root.AddCommand(newCodesCmd(&configPath, newLogger))
	root.AddCommand(newLoadCmd(newLogger))
	return root
}

func newExtractCmd(configPath *string, newLogger func() (*zap.Logger, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "extract index-dated patients and write washout cohort tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			params := hostparams.Detect(cfg.RowCap, log)
			_, err = pipeline.Extract(cfg, params, log)
			return err
		},
	}
}

func newDatasetCmd(configPath *string, newLogger func() (*zap.Logger, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "dataset",
		Short: "build baseline and longitudinal datasets for each cohort",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			params := hostparams.Detect(cfg.RowCap, log)
			_, err = pipeline.BuildDatasets(cfg, params, log)
			return err
		},
	}
}

func newCodesCmd(configPath *string, newLogger func() (*zap.Logger, error)) *cobra.Command {
	var (
		system string
		kind   string
		prefix bool
	)
	cmd := &cobra.Command{
		Use:   "codes <code>",
		Short: "resolve an ICD10 or ATC code against the reference masters",
		Long: `Resolve a clinical code to internal claim codes.

Useful for verifying the code mappings a study configuration relies on
before running the pipeline. With --prefix, all ICD10 codes in the code
family are matched (e.g. "I10" matches I10, I100, I109, ...).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			var claimCodes []string
			switch strings.ToLower(system) {
			case "icd10":
				diseases, err := codemap.LoadDiseaseMap(cfg.Paths.DiagnosisMaster, log)
				if err != nil {
					return err
				}
				if prefix {
					claimCodes = diseases.ClaimCodesByPrefix(args[0], kind)
				} else {
					claimCodes = diseases.ClaimCodes(args[0], kind)
				}
			case "atc":
				drugs, err := codemap.LoadDrugMap(cfg.Paths.DrugMaster, log)
				if err != nil {
					return err
				}
				claimCodes = drugs.ClaimCodes(args[0])
			default:
				return fmt.Errorf("unknown code system %q (want icd10 or atc)", system)
			}

			if len(claimCodes) == 0 {
				return fmt.Errorf("%s code %s matches no master entries", system, args[0])
			}
			for _, c := range claimCodes {
				fmt.Println(c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "icd10", "code system: icd10 or atc")
	cmd.Flags().StringVar(&kind, "kind", "1", "ICD10 kind qualifier")
	cmd.Flags().BoolVar(&prefix, "prefix", false, "match the whole ICD10 code family")
	return cmd
}

func newLoadCmd(newLogger func() (*zap.Logger, error)) *cobra.Command {
	var (
		input string
		conn  string
		table string
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "load a baseline dataset into PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			if input == "" {
				return fmt.Errorf("--input is required")
			}
			if conn == "" {
				return fmt.Errorf("--conn is required")
			}
			_, err = pgload.LoadBaseline(context.Background(), input, conn, table, log)
			return err
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "baseline parquet file to load")
	cmd.Flags().StringVar(&conn, "conn", "", "PostgreSQL connection string")
	cmd.Flags().StringVar(&table, "table", "cohort_baseline", "target table name")
	return cmd
}
