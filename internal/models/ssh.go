package models

import "time"

// SSHConfig holds SSH shutdown configuration.
type SSHConfig struct {
	User           string
	Port           int
	Timeout        time.Duration // connect timeout
	Command        string        // e.g. "shutdown -h now"
	KnownHostsPath string        // empty trusts any host key
	PrivateKey     []byte        // loaded from KeyPath
	KeyPath        string        // path to key file
}
