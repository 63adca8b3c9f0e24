package models

import "fmt"

// Credentials are the per-host login for the remote-admin workflow.
type Credentials struct {
	Username string
	Password string
}

// HostRecord is a single entry parsed from a server list.
type HostRecord struct {
	Hostname    string
	Credentials *Credentials // nil for the SSH workflow
}

// String returns the hostname. Credentials are never rendered.
func (h HostRecord) String() string {
	return h.Hostname
}

// Username returns the login name or an empty string.
func (h HostRecord) Username() string {
	if h.Credentials == nil {
		return ""
	}
	return h.Credentials.Username
}

// MalformedLine is a server-list line that was discarded.
type MalformedLine struct {
	Number int
	Text   string
}

func (m MalformedLine) String() string {
	return fmt.Sprintf("line %d: %q", m.Number, m.Text)
}
