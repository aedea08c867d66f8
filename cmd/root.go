package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/creditloom-cli/internal/artifact"
	cfgpkg "github.com/KaramelBytes/creditloom-cli/internal/config"
	"github.com/KaramelBytes/creditloom-cli/internal/features"
	"github.com/KaramelBytes/creditloom-cli/internal/logging"
	"github.com/KaramelBytes/creditloom-cli/internal/source"
)

var (
	// Global flags
	cfgFile      string
	debug        bool
	flagDataDir  string
	flagModelDir string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "creditloom",
	Short: "creditloom: credit-risk scoring for microfinance beneficiaries",
	Long: `creditloom builds per-beneficiary features from CSV exports (beneficiaries,
EMI repayment, account transactions, mobile recharge, electricity, PDS and
utility bills), trains a gradient-boosted default classifier, and scores
beneficiaries into a default probability table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle (loadConfig refers to rootCmd).
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.creditloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory holding the source CSVs (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModelDir, "model-dir", "", "directory holding the trained model (overrides config)")
}

func loadConfig() error {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	f := rootCmd.PersistentFlags()
	if f.Changed("data-dir") && flagDataDir != "" {
		c.DataDir = flagDataDir
	}
	if f.Changed("model-dir") && flagModelDir != "" {
		c.ModelDir = flagModelDir
	}
	cfg = c

	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logging.SetDefaultCLILogger(level)
	return nil
}

// loadSources reads every configured source. Missing optional files only warn.
func loadSources() (source.Set, error) {
	set, err := source.LoadSet(cfg.SourcePaths(), slog.Default().WithGroup("load"))
	if err != nil {
		return nil, err
	}
	return set, nil
}

func newBuilder() *features.Builder {
	return features.NewBuilder(slog.Default().WithGroup("features"))
}

func modelStore() *artifact.Store {
	return artifact.NewStore(cfg.ModelDir)
}
