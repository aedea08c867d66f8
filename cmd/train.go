package cmd

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/creditloom-cli/internal/pipeline"
)

var (
	trainTopFeatures int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the default classifier from the configured sources",
	Long: `Builds one feature row per beneficiary, fits a median imputer and a
gradient-boosted classifier on target_default, and saves both to the model
directory. Concurrent train runs against the same model directory are not
supported.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		set, err := loadSources()
		if err != nil {
			return err
		}
		tr := &pipeline.Trainer{
			Builder: newBuilder(),
			Params:  cfg.GBDT.Params(),
			Store:   modelStore(),
			Log:     slog.Default(),
		}
		b, err := tr.Run(set)
		if err != nil {
			return err
		}

		m := b.Manifest
		fmt.Printf("✓ Trained model %s\n", m.RunID)
		fmt.Printf("  rows: %d  positive rate: %.3f  train AUC: %.3f\n", m.Rows, m.PositiveRate, m.TrainAUC)
		fmt.Printf("  trees: %d  features: %d  saved to: %s\n", len(b.Model.Trees), len(m.Columns), cfg.ModelDir)

		if trainTopFeatures > 0 {
			type fg struct {
				name string
				gain float64
			}
			list := make([]fg, 0, len(m.Columns))
			for i, c := range m.Columns {
				list = append(list, fg{c, b.Model.Gain[i]})
			}
			sort.SliceStable(list, func(i, j int) bool { return list[i].gain > list[j].gain })
			fmt.Println("  top features by gain:")
			for i := 0; i < trainTopFeatures && i < len(list); i++ {
				fmt.Printf("    %-22s %.4f\n", list[i].name, list[i].gain)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().IntVar(&trainTopFeatures, "top", 5, "print the N most important features (0 to disable)")
}
