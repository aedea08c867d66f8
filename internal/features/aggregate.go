package features

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/creditloom-cli/internal/money"
	"github.com/KaramelBytes/creditloom-cli/internal/source"
)

// Aggregator collapses one optional source into fixed per-beneficiary
// columns. Aggregate returns one slice of len(Columns()) values per
// beneficiary id seen in the source.
type Aggregator interface {
	Source() string
	Columns() []string
	Aggregate(t *source.Table) (map[string][]float64, error)
}

// DefaultAggregators returns the aggregators for every optional source, in
// feature column order.
func DefaultAggregators() []Aggregator {
	return []Aggregator{
		repaymentAggregator{},
		transactionAggregator{},
		sumMeanAggregator{source: source.Mobile, column: "recharge_amount", sumName: "mob_total_recharge", meanName: "mob_avg_recharge"},
		sumMeanAggregator{source: source.Electricity, column: "bill_amount", sumName: "elec_total", meanName: "elec_avg"},
		pdsAggregator{},
		utilityAggregator{},
	}
}

// moneyOrZero coerces a blank or invalid amount to zero.
func moneyOrZero(t *source.Table, row int, col string) money.Amount {
	a, ok := t.Money(row, col)
	if !ok {
		return money.Amount{}
	}
	return a
}

// floatOrZero coerces a blank or invalid number to zero.
func floatOrZero(t *source.Table, row int, col string) float64 {
	v, ok := t.Float(row, col)
	if !ok {
		return 0
	}
	return v
}

type repaymentAggregator struct{}

func (repaymentAggregator) Source() string { return source.Repayment }

func (repaymentAggregator) Columns() []string {
	return []string{"num_emi_records", "total_emi_amount", "avg_dpd", "max_dpd"}
}

func (repaymentAggregator) Aggregate(t *source.Table) (map[string][]float64, error) {
	type acc struct {
		emis   map[string]struct{}
		amount money.Accumulator
		dpd    []float64
	}
	accs := map[string]*acc{}
	for r := 0; r < t.Len(); r++ {
		id := t.Key(r)
		a := accs[id]
		if a == nil {
			a = &acc{emis: map[string]struct{}{}}
			accs[id] = a
		}
		if emi := t.Text(r, "emi_record_id"); emi != "" {
			a.emis[emi] = struct{}{}
		}
		if amt, ok := t.Money(r, "emi_amount"); ok {
			a.amount.Add(amt)
		}
		a.dpd = append(a.dpd, floatOrZero(t, r, "dpd_days"))
	}

	out := make(map[string][]float64, len(accs))
	for id, a := range accs {
		sort.Float64s(a.dpd)
		out[id] = []float64{
			float64(len(a.emis)),
			a.amount.Sum().Float64(),
			stat.Mean(a.dpd, nil),
			floats.Max(a.dpd),
		}
	}
	return out, nil
}

type transactionAggregator struct{}

func (transactionAggregator) Source() string { return source.Transactions }

func (transactionAggregator) Columns() []string { return []string{"total_credit", "total_debit"} }

// Aggregate sums credits and debits independently; any other transaction
// type is ignored.
func (transactionAggregator) Aggregate(t *source.Table) (map[string][]float64, error) {
	credits := map[string]*money.Accumulator{}
	debits := map[string]*money.Accumulator{}
	add := func(m map[string]*money.Accumulator, id string, a money.Amount) {
		acc := m[id]
		if acc == nil {
			acc = &money.Accumulator{}
			m[id] = acc
		}
		acc.Add(a)
	}
	for r := 0; r < t.Len(); r++ {
		switch strings.ToUpper(t.Text(r, "type")) {
		case "CREDIT":
			add(credits, t.Key(r), moneyOrZero(t, r, "amount"))
		case "DEBIT":
			add(debits, t.Key(r), moneyOrZero(t, r, "amount"))
		}
	}

	out := map[string][]float64{}
	for id, acc := range credits {
		out[id] = []float64{acc.Sum().Float64(), 0}
	}
	for id, acc := range debits {
		v, ok := out[id]
		if !ok {
			v = []float64{0, 0}
			out[id] = v
		}
		v[1] = acc.Sum().Float64()
	}
	return out, nil
}

// sumMeanAggregator computes the sum and mean of one monetary column.
type sumMeanAggregator struct {
	source   string
	column   string
	sumName  string
	meanName string
}

func (a sumMeanAggregator) Source() string { return a.source }

func (a sumMeanAggregator) Columns() []string { return []string{a.sumName, a.meanName} }

func (a sumMeanAggregator) Aggregate(t *source.Table) (map[string][]float64, error) {
	accs := map[string]*money.Accumulator{}
	for r := 0; r < t.Len(); r++ {
		id := t.Key(r)
		acc := accs[id]
		if acc == nil {
			acc = &money.Accumulator{}
			accs[id] = acc
		}
		acc.Add(moneyOrZero(t, r, a.column))
	}
	out := make(map[string][]float64, len(accs))
	for id, acc := range accs {
		out[id] = []float64{acc.Sum().Float64(), acc.Mean().Float64()}
	}
	return out, nil
}

type pdsAggregator struct{}

func (pdsAggregator) Source() string { return source.PDS }

func (pdsAggregator) Columns() []string {
	return []string{"pds_family_members", "pds_avg_uptake", "pds_txn_count"}
}

func (pdsAggregator) Aggregate(t *source.Table) (map[string][]float64, error) {
	type acc struct {
		family []float64
		uptake []float64
		rows   int
	}
	accs := map[string]*acc{}
	for r := 0; r < t.Len(); r++ {
		id := t.Key(r)
		a := accs[id]
		if a == nil {
			a = &acc{}
			accs[id] = a
		}
		a.rows++
		if v, ok := t.Float(r, "num_family_members"); ok {
			a.family = append(a.family, v)
		}
		if v, ok := t.Float(r, "uptake_ratio"); ok {
			a.uptake = append(a.uptake, v)
		}
	}
	out := make(map[string][]float64, len(accs))
	for id, a := range accs {
		var family, uptake float64
		if len(a.family) > 0 {
			family = floats.Max(a.family)
		}
		if len(a.uptake) > 0 {
			sort.Float64s(a.uptake)
			uptake = stat.Mean(a.uptake, nil)
		}
		out[id] = []float64{family, uptake, float64(a.rows)}
	}
	return out, nil
}

type utilityAggregator struct{}

func (utilityAggregator) Source() string { return source.Utilities }

func (utilityAggregator) Columns() []string { return []string{"util_total_bill", "util_total_arrears"} }

func (utilityAggregator) Aggregate(t *source.Table) (map[string][]float64, error) {
	type acc struct{ bill, arrears money.Accumulator }
	accs := map[string]*acc{}
	for r := 0; r < t.Len(); r++ {
		id := t.Key(r)
		a := accs[id]
		if a == nil {
			a = &acc{}
			accs[id] = a
		}
		a.bill.Add(moneyOrZero(t, r, "bill_amount"))
		a.arrears.Add(moneyOrZero(t, r, "arrears_amount"))
	}
	out := make(map[string][]float64, len(accs))
	for id, a := range accs {
		out[id] = []float64{a.bill.Sum().Float64(), a.arrears.Sum().Float64()}
	}
	return out, nil
}
