// Package models contains the data structures used throughout autoshutdown.
package models

import "time"

// Config holds the tunables shared by both shutdown workflows.
type Config struct {
	SSH   SSHConfig
	RPC   RPCConfig
	Probe ProbeConfig
	Poll  PollConfig
}

// ProbeConfig controls the ICMP reachability check.
type ProbeConfig struct {
	Binary  string        // ping executable, e.g. /bin/ping
	Timeout time.Duration // per-probe deadline
}

// RPCConfig controls the remote-admin (Samba net rpc) transport.
type RPCConfig struct {
	Binary string // net executable, e.g. /usr/bin/net
}

// Options describe a single invocation of a shutdown workflow.
type Options struct {
	ServerList string // path to plaintext or encrypted list
	KeyPath    string // SSH workflow only
	DryRun     bool
}
