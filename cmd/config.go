package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/creditloom-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set creditloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		keys := configKeys(cfg)
		names := make([]string, 0, len(keys))
		for k := range keys {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Printf("%s: %s\n", k, keys[k].get())
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		f, ok := configKeys(cfg)[key]
		if !ok {
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := f.set(val); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

type configField struct {
	get func() string
	set func(string) error
}

func stringField(p *string) configField {
	return configField{
		get: func() string { return *p },
		set: func(v string) error { *p = v; return nil },
	}
}

func intField(p *int) configField {
	return configField{
		get: func() string { return strconv.Itoa(*p) },
		set: func(v string) error {
			i, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*p = i
			return nil
		},
	}
}

func int64Field(p *int64) configField {
	return configField{
		get: func() string { return strconv.FormatInt(*p, 10) },
		set: func(v string) error {
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			*p = i
			return nil
		},
	}
}

func floatField(p *float64) configField {
	return configField{
		get: func() string { return strconv.FormatFloat(*p, 'g', -1, 64) },
		set: func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*p = f
			return nil
		},
	}
}

func logLevelField(p *string) configField {
	return configField{
		get: func() string { return *p },
		set: func(v string) error {
			switch v {
			case "debug", "info", "warn", "error":
				*p = v
				return nil
			}
			return fmt.Errorf("%q (use debug, info, warn or error)", v)
		},
	}
}

// configKeys maps every settable dotted key to its field in c.
func configKeys(c *cfgpkg.Global) map[string]configField {
	return map[string]configField{
		"data_dir":              stringField(&c.DataDir),
		"model_dir":             stringField(&c.ModelDir),
		"output_path":           stringField(&c.OutputPath),
		"scores_path":           stringField(&c.ScoresPath),
		"db_path":               stringField(&c.DBPath),
		"log_level":             logLevelField(&c.LogLevel),
		"serve_addr":            stringField(&c.ServeAddr),
		"sources.beneficiaries": stringField(&c.Sources.Beneficiaries),
		"sources.repayment":     stringField(&c.Sources.Repayment),
		"sources.transactions":  stringField(&c.Sources.Transactions),
		"sources.mobile":        stringField(&c.Sources.Mobile),
		"sources.electricity":   stringField(&c.Sources.Electricity),
		"sources.pds":           stringField(&c.Sources.PDS),
		"sources.utilities":     stringField(&c.Sources.Utilities),
		"gbdt.num_trees":        intField(&c.GBDT.NumTrees),
		"gbdt.learning_rate":    floatField(&c.GBDT.LearningRate),
		"gbdt.max_depth":        intField(&c.GBDT.MaxDepth),
		"gbdt.min_samples_leaf": intField(&c.GBDT.MinSamplesLeaf),
		"gbdt.min_child_weight": floatField(&c.GBDT.MinChildWeight),
		"gbdt.l2":               floatField(&c.GBDT.L2),
		"gbdt.subsample":        floatField(&c.GBDT.Subsample),
		"gbdt.seed":             int64Field(&c.GBDT.Seed),
		"risk_bands.low_max":    floatField(&c.RiskBands.LowMax),
		"risk_bands.medium_max": floatField(&c.RiskBands.MediumMax),
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
