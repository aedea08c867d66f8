package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/creditloom-cli/internal/gbdt"
	"github.com/KaramelBytes/creditloom-cli/internal/source"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data", c.DataDir)
	assert.Equal(t, "models", c.ModelDir)
	assert.Equal(t, "scored_output.csv", c.OutputPath)
	assert.Equal(t, "scored_output.csv", c.LookupPath())
	assert.Equal(t, gbdt.DefaultParams(), c.GBDT.Params())
	assert.Equal(t, 0.3, c.RiskBands.LowMax)
	assert.Equal(t, 0.6, c.RiskBands.MediumMax)
	require.NoError(t, c.Validate())

	paths := c.SourcePaths()
	assert.Equal(t, filepath.Join("data", "beneficiary.csv"), paths[source.Beneficiaries])
	assert.Equal(t, filepath.Join("data", "recharge.csv"), paths[source.Mobile])
	assert.Len(t, paths, len(source.Names()))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := filepath.Join(home, "cfg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("data_dir: /srv/exports\ngbdt:\n  num_trees: 7\nsources:\n  pds: /abs/pds.csv\n"), 0o644))
	t.Setenv("CREDITLOOM_MODEL_DIR", "/tmp/m")
	t.Setenv("CREDITLOOM_GBDT_SEED", "9")

	c, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/srv/exports", c.DataDir)
	assert.Equal(t, 7, c.GBDT.NumTrees)
	assert.Equal(t, int64(9), c.GBDT.Seed)
	assert.Equal(t, "/tmp/m", c.ModelDir)
	assert.Equal(t, 0.1, c.GBDT.LearningRate)

	paths := c.SourcePaths()
	assert.Equal(t, "/abs/pds.csv", paths[source.PDS])
	assert.Equal(t, "/srv/exports/repayment.csv", paths[source.Repayment])
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("data_dir: [unterminated\n"), 0o644))
	_, err := Load(p)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	c, err := Load("")
	require.NoError(t, err)
	c.ScoresPath = "published.csv"
	c.RiskBands.LowMax = 0.25
	require.NoError(t, Save(c, ""))
	assert.FileExists(t, filepath.Join(home, ".creditloom", "config.yaml"))

	back, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "published.csv", back.LookupPath())
	assert.Equal(t, 0.25, back.RiskBands.LowMax)
}

func TestValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)

	c.GBDT.NumTrees = 0
	assert.Error(t, c.Validate())

	c.GBDT.NumTrees = 10
	c.RiskBands.LowMax = 0.9
	assert.Error(t, c.Validate())
}
