// Package device owns the authenticated MQTT session to one printer. It
// correlates command responses by sequence id, folds asynchronous report
// pushes into a single-writer status cache, and restores dropped transports
// with backoff in the background.
package device
