// Package serverlist parses operator server lists.
package serverlist

import (
	"strings"

	"github.com/fgeck/autoshutdown/internal/models"
	"github.com/rs/zerolog"
)

// Format selects the line shape expected in a server list.
type Format int

const (
	// FormatHostname expects one hostname per line (SSH workflow).
	FormatHostname Format = iota
	// FormatCredentials expects "hostname username password" per line
	// (remote-admin workflow).
	FormatCredentials
)

func (f Format) String() string {
	switch f {
	case FormatHostname:
		return "hostname"
	case FormatCredentials:
		return "credentials"
	default:
		return "unknown"
	}
}

// credentialFields is the number of fields in a FormatCredentials line.
const credentialFields = 3

// Result holds the outcome of parsing a server list.
type Result struct {
	Hosts     []models.HostRecord  // in file order, duplicates kept
	Malformed []models.MalformedLine // discarded lines
}

// Parse splits data into host records. Blank lines and lines whose first
// non-blank character is '#' are skipped. In FormatCredentials, lines that
// do not have exactly three whitespace-separated fields are discarded with a
// warning and parsing continues.
func Parse(logger zerolog.Logger, data []byte, format Format) Result {
	var res Result

	for i, raw := range strings.Split(string(data), "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || line[0] == '#' {
			continue
		}

		switch format {
		case FormatCredentials:
			fields := strings.Fields(line)
			if len(fields) != credentialFields {
				logger.Warn().
					Int("line", lineNo).
					Str("text", redact(fields)).
					Msg("discarding garbage line")
				res.Malformed = append(res.Malformed, models.MalformedLine{Number: lineNo, Text: line})
				continue
			}
			res.Hosts = append(res.Hosts, models.HostRecord{
				Hostname: fields[0],
				Credentials: &models.Credentials{
					Username: fields[1],
					Password: fields[2],
				},
			})
		default:
			res.Hosts = append(res.Hosts, models.HostRecord{Hostname: line})
		}
	}

	return res
}

// redact keeps the shape of a malformed credential line visible in logs
// without printing what may be a password. Only the first field is shown.
func redact(fields []string) string {
	if len(fields) <= 1 {
		return strings.Join(fields, " ")
	}
	masked := []string{fields[0]}
	for range fields[1:] {
		masked = append(masked, "***")
	}
	return strings.Join(masked, " ")
}
