// Package protocol defines the printer's JSON control envelopes, the
// command-kind table, and the shallow-merge status model shared by the
// device client and the monitor.
package protocol
