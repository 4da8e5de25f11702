package gitlib

import "time"

// Signature represents a git signature (author/committer).
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Epoch returns the signature time as seconds since the Unix epoch.
// The value is the absolute instant recorded by git; the timezone offset
// carried alongside it is not applied.
func (s Signature) Epoch() int64 {
	return s.When.Unix()
}
