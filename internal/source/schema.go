package source

import "strings"

// Kind is the declared type of a source column.
type Kind int

const (
	String Kind = iota
	Date
	Int
	Float
	Money
	Bool
)

func (k Kind) String() string {
	switch k {
	case Date:
		return "date"
	case Int:
		return "int"
	case Float:
		return "float"
	case Money:
		return "money"
	case Bool:
		return "bool"
	default:
		return "string"
	}
}

// Column describes one named column of a source file.
type Column struct {
	Name     string
	Kind     Kind
	Required bool
	// Aliases are alternative header spellings accepted for this column.
	Aliases []string
}

// Schema is the expected layout of one source file. Key names the
// beneficiary identifier column every source is joined on.
type Schema struct {
	Name    string
	Key     string
	Columns []Column
}

// Column returns the declared column by canonical name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Source names.
const (
	Beneficiaries = "beneficiaries"
	Repayment     = "repayment"
	Transactions  = "transactions"
	Mobile        = "mobile"
	Electricity   = "electricity"
	PDS           = "pds"
	Utilities     = "utilities"
)

// KeyColumn is the join key shared by every source.
const KeyColumn = "beneficiary_id"

var schemas = []Schema{
	{
		Name: Beneficiaries,
		Key:  KeyColumn,
		Columns: []Column{
			{Name: "aadhaar_number", Kind: String, Aliases: []string{"aadhar_number"}},
			{Name: "mobile_number", Kind: String},
			{Name: "full_name", Kind: String},
			{Name: "date_of_birth", Kind: Date, Required: true, Aliases: []string{"dob"}},
			{Name: "target_default", Kind: Bool},
		},
	},
	{
		Name: Repayment,
		Key:  KeyColumn,
		Columns: []Column{
			{Name: "loan_id", Kind: String},
			{Name: "emi_record_id", Kind: String, Required: true},
			{Name: "emi_amount", Kind: Money, Required: true},
			{Name: "dpd_days", Kind: Int, Required: true},
		},
	},
	{
		Name: Transactions,
		Key:  KeyColumn,
		Columns: []Column{
			{Name: "type", Kind: String, Required: true, Aliases: []string{"transaction_type"}},
			{Name: "amount", Kind: Money, Required: true},
		},
	},
	{
		Name: Mobile,
		Key:  KeyColumn,
		Columns: []Column{
			{Name: "recharge_amount", Kind: Money, Required: true},
		},
	},
	{
		Name: Electricity,
		Key:  KeyColumn,
		Columns: []Column{
			{Name: "bill_amount", Kind: Money, Required: true},
		},
	},
	{
		Name: PDS,
		Key:  KeyColumn,
		Columns: []Column{
			{Name: "ration_card_id", Kind: String},
			{Name: "num_family_members", Kind: Int, Required: true},
			{Name: "uptake_ratio", Kind: Float, Required: true},
		},
	},
	{
		Name: Utilities,
		Key:  KeyColumn,
		Columns: []Column{
			{Name: "bill_amount", Kind: Money, Required: true},
			{Name: "arrears_amount", Kind: Money},
		},
	},
}

// Names returns the source names in load order. The beneficiary source
// always comes first.
func Names() []string {
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.Name
	}
	return out
}

// SchemaFor returns the schema registered for a source name.
func SchemaFor(name string) (Schema, bool) {
	for _, s := range schemas {
		if s.Name == strings.ToLower(strings.TrimSpace(name)) {
			return s, true
		}
	}
	return Schema{}, false
}
