package canon

import "errors"

// ErrSerialization is the sentinel for every canonicalization failure:
// a disallowed value kind, a non-string map key, a malformed
// previous-hash, or a non-object top-level value. Wrap it with
// fmt.Errorf("%w: ...") to add detail; callers match it with errors.Is.
var ErrSerialization = errors.New("canon: serialization error")
