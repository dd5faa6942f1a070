/*
Package tdx obtains Intel TDX attestation quotes from inside a trust domain.

Quotes are requested from one of two sources:

  - libtdx_attest, Intel's attestation library, loaded once per process and called through cgo.
  - The Linux configfs-tsm report interface, used if the library is missing or fails.

[QuoteSource] tries them in this order. Failures never surface as errors to its callers:
an empty quote is the only failure signal, the details end up in the log.
*/
package tdx

import (
	"errors"
	"os"
)

const (
	// LibraryPath is the default location of Intel's libtdx_attest.
	LibraryPath = "/usr/lib/x86_64-linux-gnu/libtdx_attest.so.1"
	// TSMReportPath is the default configfs-tsm report root.
	TSMReportPath = "/sys/kernel/config/tsm/report"
	// GuestDevice is the path to the TDX guest device.
	GuestDevice = "/dev/tdx_guest"
	// ReportDataSize is the size of the report data bound into a quote.
	ReportDataSize = 64
)

var (
	// ErrLibraryUnavailable is returned if libtdx_attest does not exist or cannot be loaded.
	ErrLibraryUnavailable = errors.New("libtdx_attest is not available")
	// ErrNativeCallFailed is returned if tdx_att_get_quote reports an error.
	ErrNativeCallFailed = errors.New("tdx_att_get_quote failed")
	// ErrEmptyNativeQuote is returned if tdx_att_get_quote succeeds without returning a quote.
	ErrEmptyNativeQuote = errors.New("tdx_att_get_quote returned an empty quote")
	// ErrConfigfsUnavailable is returned if the configfs-tsm report interface cannot be used.
	ErrConfigfsUnavailable = errors.New("configfs-tsm report interface is not available")
	// ErrConfigfsIO is returned if a configfs-tsm report could not be created, written or read.
	ErrConfigfsIO = errors.New("configfs-tsm report failed")
)

// Paths holds the filesystem locations that decide which quote sources are available.
type Paths struct {
	Library     string
	TSMReport   string
	GuestDevice string
}

// DefaultPaths returns the standard locations on a Linux TDX guest.
func DefaultPaths() Paths {
	return Paths{
		Library:     LibraryPath,
		TSMReport:   TSMReportPath,
		GuestDevice: GuestDevice,
	}
}

// Backend produces a quote over the given report data.
// A nil or empty quote is only ever returned together with an error.
type Backend interface {
	GetQuote(reportData [ReportDataSize]byte) ([]byte, error)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
