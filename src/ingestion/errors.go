package ingestion

import (
	"errors"
	"fmt"
)

// Run-scope failures. A missing required export kind aborts the entire run
// before anything is persisted; a missing optional kind is a warning and the
// run continues without it.
var (
	ErrMissingRequiredInput = errors.New("required export kind missing")
	ErrMissingOptionalInput = errors.New("optional export kind missing")
)

// RecordError is a record-scope failure: one malformed export record. The
// record is skipped and logged with enough context to find it again; the
// rest of the file is unaffected.
type RecordError struct {
	Kind     ExportKind
	SourceID string
	Symbol   string
	Date     string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("malformed %s record (sourceID=%s symbol=%s date=%s): %v",
		e.Kind, e.SourceID, e.Symbol, e.Date, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
