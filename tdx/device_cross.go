//go:build !linux
// +build !linux

package tdx

import "errors"

func createReport(_ device, _ [ReportDataSize]byte) ([tdReportSize]byte, error) {
	return [tdReportSize]byte{}, errors.New("creating TDX reports is only supported on linux")
}
