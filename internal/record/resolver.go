package record

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrDuplicateKey indicates two distinct pending records resolved to the
// same durable key. This is a data-quality condition: the records are
// surfaced to the operator and excluded from prompting, never merged.
var ErrDuplicateKey = errors.New("duplicate durable key")

// Key is a durable identity for a record, stable across the fetch/decide
// boundary. It is either the store's immutable id column (when configured
// and populated) or a digest of the natural key fields. A row position is
// never a valid Key.
type Key string

// keySep separates natural-key fields before hashing. Unit separator keeps
// ("ab","c") and ("a","bc") from colliding.
const keySep = "\x1f"

// KeyOf resolves the durable key for a record. An explicit native id wins;
// otherwise the key is derived from content, platform and scheduled date.
func KeyOf(r Record) Key {
	if r.NativeID != "" {
		return Key("id:" + r.NativeID)
	}
	sum := sha256.Sum256([]byte(r.Content + keySep + r.Platform + keySep + r.ScheduledAt))
	return Key("h:" + hex.EncodeToString(sum[:]))
}

// DuplicateKeyError carries the colliding key and the records involved.
type DuplicateKeyError struct {
	Key     Key
	Records []Record
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%v: %d records resolve to %s", ErrDuplicateKey, len(e.Records), e.Key)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }
