package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/creditloom-cli/internal/scores"
	"github.com/KaramelBytes/creditloom-cli/internal/store"
)

var (
	lookupJSON    bool
	lookupHistory bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <beneficiary_id>",
	Short: "Look up a beneficiary's score",
	Long: `Reads the scores file (scores_path, or output_path when unset) and prints
the beneficiary's score and risk band. With --history, also lists the scores
recorded for the beneficiary by past "score --record" runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		tbl, err := scores.Load(cfg.LookupPath(), cfg.RiskBands)
		if err != nil {
			return err
		}
		e, err := tbl.Get(id)
		if err != nil {
			return err
		}
		if lookupJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(e)
		}
		fmt.Printf("%s: score %.4f (%s)\n", e.BeneficiaryID, e.Score, e.RiskBandClass)

		if !lookupHistory {
			return nil
		}
		if _, err := os.Stat(cfg.DBPath); err != nil {
			fmt.Println("  no recorded runs")
			return nil
		}
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		hist, err := store.BeneficiaryHistory(db, id)
		if err != nil {
			return err
		}
		if len(hist) == 0 {
			fmt.Println("  no recorded runs")
			return nil
		}
		for _, h := range hist {
			fmt.Printf("  %s  %s  %.4f (%s)\n", h.CreatedAt.Local().Format("2006-01-02 15:04"), h.RunID, h.DefaultProb, h.RiskBandClass)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "print the entry as JSON")
	lookupCmd.Flags().BoolVar(&lookupHistory, "history", false, "list recorded scores from the history database")
}
