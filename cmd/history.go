package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/creditloom-cli/internal/store"
)

var (
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history [run_id]",
	Short: "List recorded scoring runs",
	Long: `Without arguments, lists the most recent runs recorded with
"score --record". With a run id, prints that run's scores.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfg.DBPath); err != nil {
			if len(args) == 1 {
				return fmt.Errorf("run %s: %w", args[0], store.ErrRunNotFound)
			}
			fmt.Println("No recorded runs")
			return nil
		}
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 {
			list, err := store.RunScores(db, args[0])
			if err != nil {
				return err
			}
			fmt.Println("beneficiary_id,default_prob,risk_band_class")
			for _, s := range list {
				fmt.Printf("%s,%g,%s\n", s.BeneficiaryID, s.DefaultProb, s.RiskBandClass)
			}
			return nil
		}

		runs, err := store.ListRuns(db, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No recorded runs")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  model=%s  scored=%d  -> %s\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04"), r.RunID, r.ModelRunID, r.NumScored, r.OutputPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
}
