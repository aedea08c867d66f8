package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/creditloom-cli/internal/analysis"
)

var (
	srcOutliers float64
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Profile the configured source files",
	Long: `Loads every configured source and reports its path, whether it was found,
row and beneficiary counts, and per-column missing, invalid and summary
statistics. Fails when a file does not match its schema.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := loadSources()
		if err != nil {
			return err
		}
		opt := analysis.DefaultOptions()
		if cmd.Flags().Changed("outliers") {
			opt.OutlierThreshold = srcOutliers
		}
		fmt.Print(analysis.Profile(set, opt).Markdown())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.Flags().Float64Var(&srcOutliers, "outliers", analysis.DefaultOptions().OutlierThreshold, "robust |z| threshold for outlier counts (0 to disable)")
}
