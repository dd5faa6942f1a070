package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edgelesssys/go-tdx-attest/quote"
	"github.com/edgelesssys/go-tdx-attest/tdx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	testclock "k8s.io/utils/clock/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQuote(t *testing.T) {
	validQuote := testQuote()

	testCases := map[string]struct {
		method         string
		target         string
		body           string
		result         tdx.Result
		wantCode       int
		wantReportData []byte
		wantCalled     bool
	}{
		"get without report data": {
			method:     http.MethodGet,
			target:     "/quote",
			result:     tdx.Result{Quote: validQuote, Source: tdx.SourceNative},
			wantCode:   http.StatusOK,
			wantCalled: true,
		},
		"get with hex report data": {
			method:         http.MethodGet,
			target:         "/quote?report_data=0a0b",
			result:         tdx.Result{Quote: validQuote, Source: tdx.SourceConfigfs},
			wantCode:       http.StatusOK,
			wantReportData: []byte{0x0a, 0x0b},
			wantCalled:     true,
		},
		"get with invalid hex": {
			method:   http.MethodGet,
			target:   "/quote?report_data=xyz",
			wantCode: http.StatusBadRequest,
		},
		"post with report data": {
			method:         http.MethodPost,
			target:         "/quote",
			body:           `{"reportData":"` + base64.StdEncoding.EncodeToString([]byte("nonce")) + `"}`,
			result:         tdx.Result{Quote: validQuote, Source: tdx.SourceNative},
			wantCode:       http.StatusOK,
			wantReportData: []byte("nonce"),
			wantCalled:     true,
		},
		"post with empty body": {
			method:     http.MethodPost,
			target:     "/quote",
			result:     tdx.Result{Quote: validQuote, Source: tdx.SourceNative},
			wantCode:   http.StatusOK,
			wantCalled: true,
		},
		"post with empty report data": {
			method:     http.MethodPost,
			target:     "/quote",
			body:       `{"reportData":""}`,
			result:     tdx.Result{Quote: validQuote, Source: tdx.SourceNative},
			wantCode:   http.StatusOK,
			wantCalled: true,
		},
		"post with malformed json": {
			method:   http.MethodPost,
			target:   "/quote",
			body:     `{"reportData":`,
			wantCode: http.StatusBadRequest,
		},
		"post with invalid base64": {
			method:   http.MethodPost,
			target:   "/quote",
			body:     `{"reportData":"!!!"}`,
			wantCode: http.StatusBadRequest,
		},
		"no quote available": {
			method:     http.MethodGet,
			target:     "/quote",
			result:     tdx.Result{Source: tdx.SourceNone},
			wantCode:   http.StatusServiceUnavailable,
			wantCalled: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			src := &stubSource{result: tc.result}
			s := newTestServer(t, src)

			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(tc.wantCode, rec.Code)
			assert.Equal(tc.wantCalled, src.called)
			if tc.wantCalled {
				assert.Equal(tc.wantReportData, src.reportData)
			}
			_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
			assert.NoError(err)

			switch tc.wantCode {
			case http.StatusOK:
				var resp quoteResponse
				require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(base64.StdEncoding.EncodeToString(tc.result.Quote), resp.Quote)
				assert.Equal(len(tc.result.Quote), resp.QuoteSize)
				assert.Equal(quote.ExtractMeasurements(tc.result.Quote), resp.Measurements)
				assert.Equal(tc.result.Source, resp.Source)
				assert.Equal("2024-06-01T12:00:00Z", resp.Timestamp)
			case http.StatusServiceUnavailable:
				var resp errorResponse
				require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal("Failed to generate TDX quote", resp.Error)
			}
		})
	}
}

func TestQuoteReportDataEcho(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	reportData := tdx.NormalizeReportData([]byte("nonce"))
	s := newTestServer(t, &stubSource{result: tdx.Result{Quote: testQuote(), ReportData: reportData, Source: tdx.SourceNative}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quote", nil))
	require.Equal(http.StatusOK, rec.Code)

	var resp quoteResponse
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	got, err := base64.StdEncoding.DecodeString(resp.ReportData)
	require.NoError(err)
	assert.Equal(reportData[:], got)
}

func TestRequestIDIsKept(t *testing.T) {
	s := newTestServer(t, &stubSource{})
	id := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(requestIDHeader, id)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, id, rec.Header().Get(requestIDHeader))
}

func TestStatus(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	tsm := filepath.Join(dir, "report")
	require.NoError(os.Mkdir(tsm, 0o755))
	paths := tdx.Paths{
		Library:     filepath.Join(dir, "libtdx_attest.so.1"),
		TSMReport:   tsm,
		GuestDevice: filepath.Join(dir, "tdx_guest"),
	}

	s := New(&stubSource{}, paths, "", zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(http.StatusOK, rec.Code)

	var status tdx.Status
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(status.Available)
	assert.True(status.TSMAvailable)
	assert.False(status.LibTDXAttest)
	assert.False(status.GuestDevice)
	assert.Equal(tsm, status.TSMPath)
}

func TestMeasurements(t *testing.T) {
	testCases := map[string]struct {
		read     func() (quote.Measurements, error)
		wantCode int
	}{
		"device available": {
			read: func() (quote.Measurements, error) {
				return quote.Measurements{quote.MRTD: "aa"}, nil
			},
			wantCode: http.StatusOK,
		},
		"device unavailable": {
			read: func() (quote.Measurements, error) {
				return nil, errors.New("no such device")
			},
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			s := newTestServer(t, &stubSource{})
			s.readMeasurements = tc.read
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/measurements", nil))

			assert.Equal(tc.wantCode, rec.Code)
			if tc.wantCode == http.StatusOK {
				assert.JSONEq(`{"mrtd":"aa"}`, rec.Body.String())
			}
		})
	}
}

func TestMeasurementsMissingDevice(t *testing.T) {
	paths := tdx.Paths{GuestDevice: filepath.Join(t.TempDir(), "tdx_guest")}
	s := New(&stubSource{}, paths, "", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/measurements", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogs(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	logFile := filepath.Join(t.TempDir(), "tdx-proxy.log")
	require.NoError(os.WriteFile(logFile, []byte("TDX attestation proxy listening\n"), 0o644))

	s := New(&stubSource{}, tdx.Paths{}, logFile, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("TDX attestation proxy listening\n", rec.Body.String())

	s.logFile = filepath.Join(t.TempDir(), "missing.log")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	assert.Equal(http.StatusInternalServerError, rec.Code)
}

func TestMetrics(t *testing.T) {
	assert := assert.New(t)

	src := &stubSource{result: tdx.Result{Quote: testQuote(), Source: tdx.SourceNative}}
	s := newTestServer(t, src)
	h := s.Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quote", nil))
	src.result = tdx.Result{Source: tdx.SourceNone}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quote", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `tdx_quote_requests_total{result="success",source="libtdx_attest"} 1`)
	assert.Contains(rec.Body.String(), `tdx_quote_requests_total{result="failure",source="none"} 1`)
	assert.Contains(rec.Body.String(), "tdx_quote_size_bytes_count 1")
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, &stubSource{})
	for _, target := range []string{"/", "/quotes", "/status/extra"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	assert := assert.New(t)

	s := newTestServer(t, &stubSource{panics: true})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quote", bytes.NewReader(nil)))

	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.Contains(rec.Body.String(), "quote source exploded")
}

func newTestServer(t *testing.T, src quoteSource) *Server {
	t.Helper()
	s := New(src, tdx.Paths{}, "", zaptest.NewLogger(t))
	s.clock = testclock.NewFakePassiveClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return s
}

// testQuote returns a v4 TDX quote carrying distinct bytes in every register.
func testQuote() []byte {
	raw := make([]byte, 632)
	header := quote.Header{Version: quote.Version4, TEEType: quote.TEETypeTDX}
	h := header.Marshal()
	copy(raw, h[:])
	for i := quote.HeaderSize; i < len(raw); i++ {
		raw[i] = byte(i)
	}
	return raw
}

type stubSource struct {
	result     tdx.Result
	panics     bool
	called     bool
	reportData []byte
}

func (s *stubSource) Acquire(reportData []byte) tdx.Result {
	if s.panics {
		panic("quote source exploded")
	}
	s.called = true
	s.reportData = reportData
	return s.result
}
