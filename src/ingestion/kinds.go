package ingestion

// ExportKind identifies one of the broker's export files. Each run expects
// one file per kind in the source directory, named "<kind>.xml".
type ExportKind string

const (
	KindTrades    ExportKind = "trades"
	KindCash      ExportKind = "cash_transactions"
	KindNAV       ExportKind = "nav"
	KindExercises ExportKind = "exercises_expirations"
	KindInterest  ExportKind = "interest_accruals"
)

// allKinds lists every kind in the order it is ingested.
var allKinds = []ExportKind{KindTrades, KindCash, KindNAV, KindExercises, KindInterest}

// Required reports whether reconciliation is meaningless without this kind.
// Trades, cash and NAV are the backbone; exercises and interest accruals
// improve fidelity but their absence is survivable.
func (k ExportKind) Required() bool {
	switch k {
	case KindTrades, KindCash, KindNAV:
		return true
	default:
		return false
	}
}

// Filename is the expected file name inside the source directory.
func (k ExportKind) Filename() string {
	return string(k) + ".xml"
}
