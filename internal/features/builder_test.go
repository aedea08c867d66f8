package features

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/creditloom-cli/internal/logging"
	"github.com/KaramelBytes/creditloom-cli/internal/source"
)

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func table(t *testing.T, name, content string) *source.Table {
	t.Helper()
	schema, ok := source.SchemaFor(name)
	require.True(t, ok, name)
	tbl, err := source.Read(strings.NewReader(content), schema, logging.Discard())
	require.NoError(t, err)
	return tbl
}

func newBuilder() *Builder {
	b := NewBuilder(logging.Discard())
	b.Now = func() time.Time { return fixedNow }
	return b
}

const beneficiariesCSV = "beneficiary_id,aadhaar_number,mobile_number,full_name,date_of_birth,target_default\n" +
	"NBC_001,123412341234,9876543210,Asha,1990-01-01,0\n" +
	"NBC_002,,9876500000,Ravi,not-a-date,1\n" +
	"NBC_003,432143214321,,Meena,1975-06-30,0\n"

func TestBuild_SingleBeneficiaryNoOptionalSources(t *testing.T) {
	set := source.Set{
		source.Beneficiaries: table(t, source.Beneficiaries,
			"beneficiary_id,date_of_birth,target_default\nNBC_001,1990-01-01,0\n"),
	}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)

	require.Equal(t, 1, ft.Len())
	assert.Equal(t, []string{"NBC_001"}, ft.IDs)
	age, ok := ft.Value("NBC_001", ColAge)
	require.True(t, ok)
	assert.InDelta(t, 2026-1990, age, 0.01)
	for j, col := range ft.Columns {
		if j < 3 {
			continue
		}
		assert.Zero(t, ft.Values[0][j], col)
	}
	assert.Equal(t, []float64{0}, ft.Labels)
	assert.True(t, ft.HasLabels())
}

func TestBuild_RepaymentAggregates(t *testing.T) {
	set := source.Set{
		source.Beneficiaries: table(t, source.Beneficiaries, beneficiariesCSV),
		source.Repayment: table(t, source.Repayment,
			"beneficiary_id,loan_id,emi_record_id,emi_amount,dpd_days\n"+
				"NBC_001,L1,E1,1500.25,5\n"+
				"NBC_001,L1,E2,1500.25,15\n"+
				"NBC_002,L2,E3,900,\n"),
	}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)

	get := func(id, col string) float64 {
		v, ok := ft.Value(id, col)
		require.True(t, ok, col)
		return v
	}
	assert.Equal(t, 2.0, get("NBC_001", "num_emi_records"))
	assert.Equal(t, 3000.5, get("NBC_001", "total_emi_amount"))
	assert.Equal(t, 10.0, get("NBC_001", "avg_dpd"))
	assert.Equal(t, 15.0, get("NBC_001", "max_dpd"))

	assert.Equal(t, 1.0, get("NBC_002", "num_emi_records"))
	assert.Equal(t, 0.0, get("NBC_002", "avg_dpd"))

	assert.Equal(t, 0.0, get("NBC_003", "num_emi_records"))
	assert.Equal(t, 0.0, get("NBC_003", "total_emi_amount"))
}

func TestBuild_TransactionsSplitByType(t *testing.T) {
	set := source.Set{
		source.Beneficiaries: table(t, source.Beneficiaries, beneficiariesCSV),
		source.Transactions: table(t, source.Transactions,
			"beneficiary_id,type,amount\n"+
				"NBC_001,credit,100.10\n"+
				"NBC_001,CREDIT,200.20\n"+
				"NBC_001,DEBIT,50\n"+
				"NBC_001,REVERSAL,999\n"+
				"NBC_003,DEBIT,abc\n"+
				"NBC_003,DEBIT,75.5\n"),
	}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)

	v, _ := ft.Value("NBC_001", "total_credit")
	assert.Equal(t, 300.3, v)
	v, _ = ft.Value("NBC_001", "total_debit")
	assert.Equal(t, 50.0, v)
	v, _ = ft.Value("NBC_003", "total_credit")
	assert.Equal(t, 0.0, v)
	v, _ = ft.Value("NBC_003", "total_debit")
	assert.Equal(t, 75.5, v)
}

func TestBuild_SumMeanAndSupplementalSources(t *testing.T) {
	set := source.Set{
		source.Beneficiaries: table(t, source.Beneficiaries, beneficiariesCSV),
		source.Mobile: table(t, source.Mobile,
			"beneficiary_id,recharge_amount\nNBC_002,199\nNBC_002,299\nNBC_002,\n"),
		source.Electricity: table(t, source.Electricity,
			"beneficiary_id,bill_amount\nNBC_003,1000.50\nNBC_003,999.50\n"),
		source.PDS: table(t, source.PDS,
			"beneficiary_id,num_family_members,uptake_ratio\nNBC_001,4,0.5\nNBC_001,5,1\n"),
		source.Utilities: table(t, source.Utilities,
			"beneficiary_id,bill_amount,arrears_amount\nNBC_001,300,25.5\nNBC_001,200,\n"),
	}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)

	check := func(id, col string, want float64) {
		t.Helper()
		v, ok := ft.Value(id, col)
		require.True(t, ok, col)
		assert.Equal(t, want, v, "%s/%s", id, col)
	}
	check("NBC_002", "mob_total_recharge", 498)
	check("NBC_002", "mob_avg_recharge", 166)
	check("NBC_003", "elec_total", 2000)
	check("NBC_003", "elec_avg", 1000)
	check("NBC_001", "pds_family_members", 5)
	check("NBC_001", "pds_avg_uptake", 0.75)
	check("NBC_001", "pds_txn_count", 2)
	check("NBC_001", "util_total_bill", 500)
	check("NBC_001", "util_total_arrears", 25.5)
	check("NBC_001", "elec_total", 0)
}

func TestBuild_RowSetFollowsBeneficiaries(t *testing.T) {
	set := source.Set{
		source.Beneficiaries: table(t, source.Beneficiaries, beneficiariesCSV),
		source.Mobile: table(t, source.Mobile,
			"beneficiary_id,recharge_amount\nGHOST,10\nNBC_001,20\nNBC_001,30\n"),
		source.Repayment: table(t, source.Repayment,
			"beneficiary_id,emi_record_id,emi_amount,dpd_days\nGHOST,E9,1,1\n"),
	}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)

	assert.Equal(t, []string{"NBC_001", "NBC_002", "NBC_003"}, ft.IDs)
	require.Len(t, ft.Values, 3)
	for _, row := range ft.Values {
		assert.Len(t, row, len(ft.Columns))
	}
	_, ok := ft.Value("GHOST", "mob_total_recharge")
	assert.False(t, ok)
}

func TestBuild_UnparseableDateAndPresenceFlags(t *testing.T) {
	set := source.Set{source.Beneficiaries: table(t, source.Beneficiaries, beneficiariesCSV)}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)

	age, _ := ft.Value("NBC_002", ColAge)
	assert.Equal(t, 0.0, age)
	a, _ := ft.Value("NBC_002", ColAadhaarPresent)
	m, _ := ft.Value("NBC_002", ColMobilePresent)
	assert.Equal(t, 0.0, a)
	assert.Equal(t, 1.0, m)
	m, _ = ft.Value("NBC_003", ColMobilePresent)
	assert.Equal(t, 0.0, m)
	assert.Equal(t, []float64{0, 1, 0}, ft.Labels)
}

func TestBuild_ImplausibleBirthDatesAreZero(t *testing.T) {
	csv := "beneficiary_id,date_of_birth\n" +
		"NBC_001,1090-01-01\n" +
		"NBC_002,0001-01-01\n" +
		"NBC_003,2030-05-05\n" +
		"NBC_004,1900-01-01\n"
	set := source.Set{source.Beneficiaries: table(t, source.Beneficiaries, csv)}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)

	for _, id := range []string{"NBC_001", "NBC_002", "NBC_003"} {
		age, ok := ft.Value(id, ColAge)
		require.True(t, ok, id)
		assert.Equal(t, 0.0, age, id)
	}
	age, _ := ft.Value("NBC_004", ColAge)
	assert.InDelta(t, 126, age, 0.01)
}

func TestBuild_MissingRequiredSource(t *testing.T) {
	_, err := newBuilder().Build(source.Set{})
	assert.True(t, errors.Is(err, ErrMissingRequiredSource))

	set := source.Set{source.Beneficiaries: table(t, source.Beneficiaries, "beneficiary_id,date_of_birth\n")}
	_, err = newBuilder().Build(set)
	assert.True(t, errors.Is(err, ErrMissingRequiredSource))
}

func TestBuild_DuplicateBeneficiary(t *testing.T) {
	set := source.Set{source.Beneficiaries: table(t, source.Beneficiaries,
		"beneficiary_id,date_of_birth\nNBC_001,1990-01-01\nNBC_001,1991-01-01\n")}
	_, err := newBuilder().Build(set)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateBeneficiary))
	assert.Contains(t, err.Error(), "NBC_001")
}

func TestBuild_UnlabeledSource(t *testing.T) {
	set := source.Set{source.Beneficiaries: table(t, source.Beneficiaries,
		"beneficiary_id,date_of_birth,target_default\nA,1990-01-01,1\nB,1990-01-01,\n")}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)
	assert.False(t, ft.HasLabels())
	assert.Equal(t, []string{"B"}, ft.UnlabeledIDs())

	set = source.Set{source.Beneficiaries: table(t, source.Beneficiaries, "beneficiary_id,date_of_birth\nA,1990-01-01\n")}
	ft, err = newBuilder().Build(set)
	require.NoError(t, err)
	assert.Nil(t, ft.Labels)
	assert.False(t, ft.HasLabels())
}

func TestColumnsIndependentOfSourcePresence(t *testing.T) {
	b := newBuilder()
	only := source.Set{source.Beneficiaries: table(t, source.Beneficiaries, beneficiariesCSV)}
	full := source.Set{
		source.Beneficiaries: table(t, source.Beneficiaries, beneficiariesCSV),
		source.Mobile:        table(t, source.Mobile, "beneficiary_id,recharge_amount\nNBC_001,10\n"),
	}
	a, err := b.Build(only)
	require.NoError(t, err)
	c, err := b.Build(full)
	require.NoError(t, err)
	assert.Equal(t, a.Columns, c.Columns)
	assert.Equal(t, a.Fingerprint(), c.Fingerprint())
	assert.Equal(t, b.Columns(), a.Columns)
	assert.NotEqual(t, Fingerprint(a.Columns[:len(a.Columns)-1]), a.Fingerprint())
}

func TestWriteCSV(t *testing.T) {
	set := source.Set{source.Beneficiaries: table(t, source.Beneficiaries,
		"beneficiary_id,aadhaar_number,date_of_birth,target_default\nNBC_001,1,1990-01-01,1\n")}
	ft, err := newBuilder().Build(set)
	require.NoError(t, err)

	p := filepath.Join(t.TempDir(), "out", "features.csv")
	require.NoError(t, ft.WriteCSV(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "beneficiary_id,age,aadhaar_present,mobile_present,num_emi_records"))
	assert.True(t, strings.HasSuffix(lines[0], ",target_default"))
	assert.True(t, strings.HasPrefix(lines[1], "NBC_001,"))
	assert.True(t, strings.HasSuffix(lines[1], ",1"))
}
