package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/creditloom-cli/internal/pipeline"
	"github.com/KaramelBytes/creditloom-cli/internal/scores"
	"github.com/KaramelBytes/creditloom-cli/internal/store"
)

var (
	scoreOutput string
	scoreRecord bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score beneficiaries with the trained model",
	Long: `Loads the trained model, builds features from the configured sources and
writes beneficiary_id,default_prob rows. Fails without writing anything when
no trained model exists.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cfg.OutputPath
		if scoreOutput != "" {
			out = scoreOutput
		}
		set, err := loadSources()
		if err != nil {
			return err
		}
		sc := &pipeline.Scorer{Builder: newBuilder(), Store: modelStore(), Log: slog.Default()}
		res, err := sc.Run(set)
		if err != nil {
			return err
		}
		if err := res.WriteCSV(out); err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", res.Summary())
		fmt.Printf("✓ Wrote scores to %s\n", out)

		tbl := scores.FromProbs(res.IDs, res.Probs, cfg.RiskBands)
		counts := tbl.BandCounts()
		fmt.Printf("  bands: %s=%d %s=%d %s=%d\n",
			scores.BandLow, counts[scores.BandLow],
			scores.BandMedium, counts[scores.BandMedium],
			scores.BandHigh, counts[scores.BandHigh])

		if scoreRecord {
			if err := recordRun(res, out, tbl); err != nil {
				return err
			}
			fmt.Printf("✓ Recorded run %s in %s\n", res.RunID, cfg.DBPath)
		}
		return nil
	},
}

func recordRun(res *pipeline.Scored, out string, tbl *scores.Table) error {
	if err := store.Init(cfg.DBPath); err != nil {
		return fmt.Errorf("init history db: %w", err)
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rows := make([]store.Score, 0, tbl.Len())
	for _, e := range tbl.Entries() {
		rows = append(rows, store.Score{BeneficiaryID: e.BeneficiaryID, DefaultProb: e.Score, RiskBandClass: e.RiskBandClass})
	}
	run := store.Run{RunID: res.RunID, ModelRunID: res.ModelRunID, CreatedAt: res.CreatedAt, OutputPath: out}
	if err := store.SaveRun(db, run, rows); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().StringVarP(&scoreOutput, "output", "o", "", "output CSV path (overrides output_path)")
	scoreCmd.Flags().BoolVar(&scoreRecord, "record", false, "record the run in the history database")
}
