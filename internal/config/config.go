package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/creditloom-cli/internal/gbdt"
	"github.com/KaramelBytes/creditloom-cli/internal/scores"
	"github.com/KaramelBytes/creditloom-cli/internal/source"
	"github.com/KaramelBytes/creditloom-cli/internal/utils"
)

const (
	envPrefix = "CREDITLOOM"
	dirName   = ".creditloom"
)

// Sources lists the CSV file of every source. Relative paths resolve against
// DataDir.
type Sources struct {
	Beneficiaries string `mapstructure:"beneficiaries" yaml:"beneficiaries"`
	Repayment     string `mapstructure:"repayment" yaml:"repayment"`
	Transactions  string `mapstructure:"transactions" yaml:"transactions"`
	Mobile        string `mapstructure:"mobile" yaml:"mobile"`
	Electricity   string `mapstructure:"electricity" yaml:"electricity"`
	PDS           string `mapstructure:"pds" yaml:"pds"`
	Utilities     string `mapstructure:"utilities" yaml:"utilities"`
}

// GBDT holds classifier hyperparameters.
type GBDT struct {
	NumTrees       int     `mapstructure:"num_trees" yaml:"num_trees"`
	LearningRate   float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	MaxDepth       int     `mapstructure:"max_depth" yaml:"max_depth"`
	MinSamplesLeaf int     `mapstructure:"min_samples_leaf" yaml:"min_samples_leaf"`
	MinChildWeight float64 `mapstructure:"min_child_weight" yaml:"min_child_weight"`
	L2             float64 `mapstructure:"l2" yaml:"l2"`
	Subsample      float64 `mapstructure:"subsample" yaml:"subsample"`
	Seed           int64   `mapstructure:"seed" yaml:"seed"`
}

// Params converts to classifier parameters.
func (g GBDT) Params() gbdt.Params {
	return gbdt.Params{
		NumTrees:       g.NumTrees,
		LearningRate:   g.LearningRate,
		MaxDepth:       g.MaxDepth,
		MinSamplesLeaf: g.MinSamplesLeaf,
		MinChildWeight: g.MinChildWeight,
		L2:             g.L2,
		Subsample:      g.Subsample,
		Seed:           g.Seed,
	}
}

// Global configuration structure.
type Global struct {
	DataDir    string  `mapstructure:"data_dir" yaml:"data_dir"`
	Sources    Sources `mapstructure:"sources" yaml:"sources"`
	ModelDir   string  `mapstructure:"model_dir" yaml:"model_dir"`
	OutputPath string  `mapstructure:"output_path" yaml:"output_path"`
	// ScoresPath is the file served by lookup/serve; empty means OutputPath.
	ScoresPath string `mapstructure:"scores_path" yaml:"scores_path"`
	DBPath     string `mapstructure:"db_path" yaml:"db_path"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	ServeAddr  string `mapstructure:"serve_addr" yaml:"serve_addr"`

	GBDT      GBDT         `mapstructure:"gbdt" yaml:"gbdt"`
	RiskBands scores.Bands `mapstructure:"risk_bands" yaml:"risk_bands"`
}

// SourcePaths resolves every source file against DataDir.
func (c *Global) SourcePaths() source.Paths {
	s := c.Sources
	raw := map[string]string{
		source.Beneficiaries: s.Beneficiaries,
		source.Repayment:     s.Repayment,
		source.Transactions:  s.Transactions,
		source.Mobile:        s.Mobile,
		source.Electricity:   s.Electricity,
		source.PDS:           s.PDS,
		source.Utilities:     s.Utilities,
	}
	out := make(source.Paths, len(raw))
	for name, p := range raw {
		out[name] = utils.ResolvePath(c.DataDir, p)
	}
	return out
}

// LookupPath returns the scores file used for lookups.
func (c *Global) LookupPath() string {
	if c.ScoresPath != "" {
		return c.ScoresPath
	}
	return c.OutputPath
}

// Validate checks values that would only fail deep inside a run.
func (c *Global) Validate() error {
	if err := c.GBDT.Params().Validate(); err != nil {
		return fmt.Errorf("gbdt: %w", err)
	}
	if err := c.RiskBands.Validate(); err != nil {
		return err
	}
	if c.Sources.Beneficiaries == "" {
		return fmt.Errorf("sources.beneficiaries is not set")
	}
	return nil
}

// Dir returns ~/.creditloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.creditloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("sources.beneficiaries", "beneficiary.csv")
	v.SetDefault("sources.repayment", "repayment.csv")
	v.SetDefault("sources.transactions", "transactions.csv")
	v.SetDefault("sources.mobile", "recharge.csv")
	v.SetDefault("sources.electricity", "electricity.csv")
	v.SetDefault("sources.pds", "pds.csv")
	v.SetDefault("sources.utilities", "utilities.csv")
	v.SetDefault("model_dir", "models")
	v.SetDefault("output_path", "scored_output.csv")
	v.SetDefault("scores_path", "")
	v.SetDefault("db_path", filepath.Join(dir, "history.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("serve_addr", "127.0.0.1:8080")

	p := gbdt.DefaultParams()
	v.SetDefault("gbdt.num_trees", p.NumTrees)
	v.SetDefault("gbdt.learning_rate", p.LearningRate)
	v.SetDefault("gbdt.max_depth", p.MaxDepth)
	v.SetDefault("gbdt.min_samples_leaf", p.MinSamplesLeaf)
	v.SetDefault("gbdt.min_child_weight", p.MinChildWeight)
	v.SetDefault("gbdt.l2", p.L2)
	v.SetDefault("gbdt.subsample", p.Subsample)
	v.SetDefault("gbdt.seed", p.Seed)

	b := scores.DefaultBands()
	v.SetDefault("risk_bands.low_max", b.LowMax)
	v.SetDefault("risk_bands.medium_max", b.MediumMax)
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, dir)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// A missing file is fine; a malformed one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
