package models

import "time"

// SkipReason classifies why a host was not touched.
type SkipReason string

// Skip reasons reported by the shutdown transports.
const (
	ReasonPassphraseRequired SkipReason = "private key requires a passphrase"
	ReasonAuthRejected       SkipReason = "authentication rejected"
	ReasonUnresolvable       SkipReason = "hostname does not resolve"
	ReasonTimeout            SkipReason = "connection timed out"
	ReasonHostKey            SkipReason = "host key verification failed"
	ReasonConnect            SkipReason = "connection failed"
	ReasonSession            SkipReason = "session failed"
	ReasonCommandFailed      SkipReason = "remote command failed"
	ReasonMissingCredentials SkipReason = "no credentials for host"
	ReasonCancelled          SkipReason = "cancelled"
)

// Attempt is the outcome of one shutdown (or dry-run verify) attempt.
// Either Touched is true, or Reason explains the skip.
type Attempt struct {
	Host    HostRecord
	Touched bool
	Reason  SkipReason
	Detail  string // underlying error text, if any
	Output  string // remote command output, if any
}

// Touched returns a successful attempt for host.
func Touched(host HostRecord, output string) Attempt {
	return Attempt{Host: host, Touched: true, Output: output}
}

// Skipped returns a failed attempt for host.
func Skipped(host HostRecord, reason SkipReason, err error) Attempt {
	a := Attempt{Host: host, Reason: reason}
	if err != nil {
		a.Detail = err.Error()
	}
	return a
}

// RunReport summarises a workflow run. Each slice is a snapshot taken at the
// step that produced it.
type RunReport struct {
	DryRun     bool
	Candidates []HostRecord
	Reachable  []HostRecord
	Down       []HostRecord
	Attempts   []Attempt
	Touched    []HostRecord
	Poll       *PollResult // nil when nothing was polled
	Duration   time.Duration
}
