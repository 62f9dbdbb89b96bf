package record

// Status is the moderation state of a record as tracked in the backing store.
// The store may spell these differently (configurable literals); inside the
// engine only these canonical values exist.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether a record in this status may never be re-prompted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Verdict is an operator decision on a pending record.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Status maps a verdict to the terminal status it produces.
// ok is false for an unknown verdict.
func (v Verdict) Status() (Status, bool) {
	switch v {
	case VerdictApprove:
		return StatusApproved, true
	case VerdictReject:
		return StatusRejected, true
	}
	return "", false
}

// Record is a single approval candidate read from the backing store.
// Position is the record's location in the store at fetch time. It is kept
// for diagnostics only and must never be used to address a later write;
// inserts and deletes between fetch and decision shift positions.
type Record struct {
	NativeID    string
	Content     string
	Platform    string
	ScheduledAt string
	Status      Status
	Position    int
}
