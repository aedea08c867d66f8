package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/creditloom-cli/internal/artifact"
	"github.com/KaramelBytes/creditloom-cli/internal/scores"
	"github.com/KaramelBytes/creditloom-cli/internal/store"
)

// resetFlags clears flag values that stick to the package-level commands
// between Execute calls.
func resetFlags() {
	scoreOutput, scoreRecord = "", false
	featOutput = ""
	lookupJSON, lookupHistory = false, false
	historyLimit = 20
	serveAddr = ""
	trainTopFeatures = 5
	srcOutliers = 0
	for _, sub := range rootCmd.Commands() {
		sub.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	cfgFile, debug, flagDataDir, flagModelDir = "", false, "", ""
	cfg = nil
}

// execute runs the root command with args and returns its error.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	if err := execute(t, args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

// setupWorkspace isolates HOME and writes beneficiary and repayment exports
// for n beneficiaries; odd ids default and carry high DPD.
func setupWorkspace(t *testing.T, n int) (home, dataDir string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CREDITLOOM_GBDT_NUM_TREES", "10")
	t.Setenv("CREDITLOOM_GBDT_MIN_SAMPLES_LEAF", "2")

	dataDir = filepath.Join(home, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	var ben, rep strings.Builder
	ben.WriteString("beneficiary_id,aadhaar_number,mobile_number,date_of_birth,target_default\n")
	rep.WriteString("beneficiary_id,emi_record_id,emi_amount,dpd_days\n")
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("NBC_%03d", i)
		dpd := 1
		if i%2 == 1 {
			dpd = 60
		}
		fmt.Fprintf(&ben, "%s,1234,98765,19%02d-03-15,%d\n", id, 60+i%30, i%2)
		fmt.Fprintf(&rep, "%s,E%d,1500.00,%d\n", id, i, dpd+i%4)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "beneficiary.csv"), []byte(ben.String()), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "repayment.csv"), []byte(rep.String()), 0o644))
	return home, dataDir
}

func readScores(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestCLI_TrainScoreLookupHistory(t *testing.T) {
	home, dataDir := setupWorkspace(t, 40)
	modelDir := filepath.Join(home, "models")
	out := filepath.Join(home, "scored.csv")
	common := []string{"--data-dir", dataDir, "--model-dir", modelDir}

	runCmd(t, append([]string{"sources"}, common...)...)
	runCmd(t, append([]string{"features", "-o", filepath.Join(home, "features.csv")}, common...)...)
	_, err := os.Stat(filepath.Join(home, "features.csv"))
	require.NoError(t, err)

	runCmd(t, append([]string{"train", "--top", "3"}, common...)...)
	assert.True(t, artifact.NewStore(modelDir).Exists())

	runCmd(t, append([]string{"score", "-o", out, "--record"}, common...)...)
	recs := readScores(t, out)
	require.Len(t, recs, 41)
	assert.Equal(t, []string{"beneficiary_id", "default_prob"}, recs[0])
	assert.Equal(t, "NBC_000", recs[1][0])

	runCmd(t, "config", "set", "scores_path", out)
	saved, err := os.ReadFile(filepath.Join(home, ".creditloom", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(saved), "scores_path: "+out)

	runCmd(t, "lookup", "NBC_001", "--history")
	err = execute(t, "lookup", "NBC_999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, scores.ErrNotFound))

	db, err := store.Open(filepath.Join(home, ".creditloom", store.DataFileName))
	require.NoError(t, err)
	defer db.Close()
	runs, err := store.ListRuns(db, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 40, runs[0].NumScored)
	assert.Equal(t, out, runs[0].OutputPath)

	runCmd(t, "history")
	runCmd(t, "history", runs[0].RunID)
	err = execute(t, "history", "no-such-run")
	assert.True(t, errors.Is(err, store.ErrRunNotFound))
}

func TestCLI_ScoreWithoutModelFails(t *testing.T) {
	home, dataDir := setupWorkspace(t, 10)
	modelDir := filepath.Join(home, "models")
	out := filepath.Join(home, "scored.csv")

	err := execute(t, "score", "-o", out, "--data-dir", dataDir, "--model-dir", modelDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, artifact.ErrModelNotFound))

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output may be written without a model")
	_, statErr = os.Stat(modelDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCLI_ConfigSetRejectsBadValues(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	runCmd(t, "config", "show")
	runCmd(t, "config", "set", "gbdt.num_trees", "25")

	assert.Error(t, execute(t, "config", "set", "gbdt.num_trees", "many"))
	assert.Error(t, execute(t, "config", "set", "no_such_key", "1"))
	assert.Error(t, execute(t, "config", "set", "log_level", "loud"))
	// medium_max below low_max fails validation and is not saved.
	assert.Error(t, execute(t, "config", "set", "risk_bands.medium_max", "0.1"))

	saved, err := os.ReadFile(filepath.Join(home, ".creditloom", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(saved), "num_trees: 25")
	assert.Contains(t, string(saved), "medium_max: 0.6")
}
