package tdx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
)

// attestLibrary is a loaded libtdx_attest.
type attestLibrary interface {
	// getQuote calls tdx_att_get_quote using the platform's default attestation key.
	// If status is zero, buf is owned by the library and must be passed to freeQuote.
	getQuote(reportData *[ReportDataSize]byte) (buf unsafe.Pointer, size uint32, status int)
	// freeQuote calls tdx_att_free_quote.
	freeQuote(buf unsafe.Pointer)
}

// libraryHandle wraps an attestLibrary so it can be published atomically.
type libraryHandle struct {
	lib attestLibrary
}

// libraryLoader loads libtdx_attest at most once.
// A failed load is not cached, the next caller tries again.
type libraryLoader struct {
	path string
	open func(path string) (attestLibrary, error)

	handle atomic.Pointer[libraryHandle]
	mu     sync.Mutex
}

// load returns the loaded library, loading it on first use.
func (l *libraryLoader) load(log *zap.Logger) (attestLibrary, error) {
	if h := l.handle.Load(); h != nil {
		return h.lib, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h := l.handle.Load(); h != nil {
		return h.lib, nil
	}

	if !pathExists(l.path) {
		log.Warn("Library not found", zap.String("path", l.path))
		return nil, fmt.Errorf("%w: %s does not exist", ErrLibraryUnavailable, l.path)
	}
	lib, err := l.open(l.path)
	if err != nil {
		log.Error("Failed to load libtdx_attest", zap.String("path", l.path), zap.Error(err))
		return nil, fmt.Errorf("%w: loading %s: %w", ErrLibraryUnavailable, l.path, err)
	}

	l.handle.Store(&libraryHandle{lib: lib})
	log.Info("libtdx_attest library loaded successfully", zap.String("path", l.path))
	return lib, nil
}

var (
	loadersMu sync.Mutex
	loaders   = map[string]*libraryLoader{}
)

// sharedLoader returns the process wide loader for the library at path.
// Loaded libraries are never closed.
func sharedLoader(path string) *libraryLoader {
	loadersMu.Lock()
	defer loadersMu.Unlock()
	if l, ok := loaders[path]; ok {
		return l
	}
	l := &libraryLoader{path: path, open: openLibrary}
	loaders[path] = l
	return l
}

// NativeBackend requests quotes from libtdx_attest.
type NativeBackend struct {
	loader *libraryLoader
	log    *zap.Logger
}

// NewNativeBackend returns a backend using the library at path.
// Backends created for the same path share a single library handle.
func NewNativeBackend(path string, log *zap.Logger) *NativeBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &NativeBackend{loader: sharedLoader(path), log: log}
}

// GetQuote requests a quote over reportData from libtdx_attest.
func (b *NativeBackend) GetQuote(reportData [ReportDataSize]byte) ([]byte, error) {
	lib, err := b.loader.load(b.log)
	if err != nil {
		return nil, err
	}

	b.log.Debug("Calling tdx_att_get_quote")
	buf, size, status := lib.getQuote(&reportData)
	if status != 0 {
		b.log.Error("tdx_att_get_quote failed", zap.String("errorCode", fmt.Sprintf("0x%04x", status)))
		return nil, fmt.Errorf("%w: error code 0x%04x", ErrNativeCallFailed, status)
	}
	if buf == nil {
		b.log.Error("tdx_att_get_quote returned a null quote")
		return nil, ErrEmptyNativeQuote
	}

	quote, err := takeQuote(lib, buf, size)
	if err != nil {
		b.log.Error("Error extracting quote", zap.Error(err))
		return nil, err
	}
	b.log.Info("Got quote via libtdx_attest", zap.Int("size", len(quote)))
	return quote, nil
}

// takeQuote copies a library owned quote buffer into Go memory and releases it.
// buf is freed exactly once, after the copy, on every path.
func takeQuote(lib attestLibrary, buf unsafe.Pointer, size uint32) (quote []byte, err error) {
	defer lib.freeQuote(buf)
	defer func() {
		if r := recover(); r != nil {
			quote, err = nil, fmt.Errorf("%w: copying quote: %v", ErrNativeCallFailed, r)
		}
	}()

	if size == 0 {
		return nil, ErrEmptyNativeQuote
	}
	quote = make([]byte, size)
	copy(quote, unsafe.Slice((*byte)(buf), size))
	return quote, nil
}
