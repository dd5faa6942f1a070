package tdx

import (
	"fmt"
	"os"

	"github.com/edgelesssys/go-tdx-attest/quote"
)

const (
	// tdReportSize is the size of a TDREPORT_STRUCT.
	tdReportSize = 1024
	// MRTD is located at offset 528 in the report.
	tdReportMRTDOffset = 528
	// RTMRs start at offset 720 in the report.
	tdReportRTMROffset = 720
)

// device is a handle to the TDX guest device.
type device interface {
	Fd() uintptr
}

// OpenGuestDevice opens the TDX guest device at path.
func OpenGuestDevice(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening TDX guest device: %w", err)
	}
	return f, nil
}

// ReadMeasurements reads the current MRTD and RTMRs of the TDX guest.
func ReadMeasurements(tdx device) (quote.Measurements, error) {
	// TDX does not support directly reading RTMRs
	// Instead, create a new report with zeroed user data,
	// and read the RTMRs and MRTD from the report
	report, err := createReport(tdx, [ReportDataSize]byte{})
	if err != nil {
		return nil, fmt.Errorf("creating report: %w", err)
	}
	return measurementsFromReport(report), nil
}

func measurementsFromReport(report [tdReportSize]byte) quote.Measurements {
	var rtmrs [4][quote.RegisterSize]byte
	for i := range rtmrs {
		start := tdReportRTMROffset + i*quote.RegisterSize
		rtmrs[i] = [quote.RegisterSize]byte(report[start : start+quote.RegisterSize])
	}
	return quote.NewMeasurements([quote.RegisterSize]byte(report[tdReportMRTDOffset:tdReportMRTDOffset+quote.RegisterSize]), rtmrs)
}
