package tdx

// NormalizeReportData fits caller supplied data to the 64 bytes of report data a quote is bound to.
// Shorter input is padded with zero bytes, longer input is truncated. Nil yields all zeros.
func NormalizeReportData(data []byte) [ReportDataSize]byte {
	var reportData [ReportDataSize]byte
	copy(reportData[:], data)
	return reportData
}
