// Package camera reconstructs discrete JPEG frames from the printer's
// framed camera byte stream over TLS.
package camera
