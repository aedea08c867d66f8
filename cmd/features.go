package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	featOutput string
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Build the feature table without training",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := loadSources()
		if err != nil {
			return err
		}
		ft, err := newBuilder().Build(set)
		if err != nil {
			return err
		}
		if featOutput == "" {
			fmt.Printf("%d beneficiaries x %d features (fingerprint %s)\n", ft.Len(), len(ft.Columns), ft.Fingerprint()[:12])
			for _, c := range ft.Columns {
				fmt.Printf("  %s\n", c)
			}
			return nil
		}
		if err := ft.WriteCSV(featOutput); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote %d feature rows to %s\n", ft.Len(), featOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	featuresCmd.Flags().StringVarP(&featOutput, "output", "o", "", "write the feature table to a CSV file")
}
