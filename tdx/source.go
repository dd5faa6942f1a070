package tdx

import (
	"go.uber.org/zap"
)

// Source names reported in [Result].
const (
	SourceNone     = "none"
	SourceNative   = "libtdx_attest"
	SourceConfigfs = "configfs-tsm"
)

// Result is the outcome of a quote request.
type Result struct {
	// Quote is empty if no quote could be generated.
	Quote []byte
	// ReportData is the normalized report data the quote was requested for.
	ReportData [ReportDataSize]byte
	// Source names the backend that produced the result, or [SourceNone].
	Source string
}

// OK reports whether a quote was generated.
func (r Result) OK() bool {
	return len(r.Quote) > 0
}

// QuoteSource requests quotes from libtdx_attest and falls back to configfs-tsm.
// It is safe for concurrent use.
type QuoteSource struct {
	paths    Paths
	native   Backend
	configfs Backend
	log      *zap.Logger
}

// NewQuoteSource returns a QuoteSource using the library and configfs root given in paths.
func NewQuoteSource(paths Paths, log *zap.Logger) *QuoteSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuoteSource{
		paths:    paths,
		native:   NewNativeBackend(paths.Library, log),
		configfs: NewConfigfsBackend(paths.TSMReport, log),
		log:      log,
	}
}

// GetQuote requests a quote over reportData, which is normalized to 64 bytes first.
// It returns the quote, empty on failure, and the report data actually used.
func (s *QuoteSource) GetQuote(reportData []byte) ([]byte, [ReportDataSize]byte) {
	res := s.Acquire(reportData)
	return res.Quote, res.ReportData
}

// Acquire is like [QuoteSource.GetQuote], but additionally reports which backend answered.
//
// libtdx_attest is preferred if present. If it fails, configfs-tsm is tried once
// and its result is final.
func (s *QuoteSource) Acquire(reportData []byte) Result {
	res := Result{ReportData: NormalizeReportData(reportData), Source: SourceNone}

	if pathExists(s.paths.Library) {
		s.log.Info("Using libtdx_attest library")
		quote, err := s.native.GetQuote(res.ReportData)
		if err == nil && len(quote) > 0 {
			res.Quote, res.Source = quote, SourceNative
			return res
		}
		s.log.Warn("libtdx_attest failed, falling back to TSM", zap.Error(err))
	}

	if pathExists(s.paths.TSMReport) {
		quote, err := s.configfs.GetQuote(res.ReportData)
		res.Source = SourceConfigfs
		if err != nil || len(quote) == 0 {
			s.log.Warn("TSM configfs produced no quote", zap.Error(err))
			return res
		}
		res.Quote = quote
		return res
	}

	s.log.Error("No TDX quote method available",
		zap.String("library", s.paths.Library), zap.String("tsmReport", s.paths.TSMReport))
	return res
}
