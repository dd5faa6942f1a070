//go:build linux

package tdx

import (
	"fmt"
	"unsafe"

	"github.com/vtolstov/go-ioctl"
	"golang.org/x/sys/unix"
)

/*
reportRequest is the structure used to create TDX reports.

	struct tdx_report_req {
	        __u8 reportdata[TDX_REPORTDATA_LEN];
	        __u8 tdreport[TDX_REPORT_LEN];
	};

https://github.com/torvalds/linux/blob/v6.7/include/uapi/linux/tdx-guest.h
*/
type reportRequest struct {
	reportData [ReportDataSize]byte
	tdReport   [tdReportSize]byte
}

// TDX_CMD_GET_REPORT0
var requestReport = ioctl.IOWR('T', 0x01, unsafe.Sizeof(reportRequest{}))

func createReport(tdx device, reportData [ReportDataSize]byte) ([tdReportSize]byte, error) {
	req := reportRequest{reportData: reportData}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, tdx.Fd(), requestReport, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return [tdReportSize]byte{}, fmt.Errorf("creating TDX report: %w", errno)
	}
	return req.tdReport, nil
}
