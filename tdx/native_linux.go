//go:build linux && cgo

package tdx

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

// https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/c057b236790834cf7e547ebf90da91c53c7ed7f9/QuoteGeneration/quote_wrapper/tdx_attest/tdx_attest.h
typedef int (*tdx_att_get_quote_fn)(const void *p_tdx_report_data, const void *att_key_id_list,
	uint32_t list_size, void *p_att_key_id, uint8_t **pp_quote, uint32_t *p_quote_size, uint32_t flags);
typedef int (*tdx_att_free_quote_fn)(uint8_t *p_quote);

static int call_tdx_att_get_quote(void *fn, const void *report_data, uint8_t **quote, uint32_t *quote_size) {
	// NULL key id list selects the platform default attestation key.
	return ((tdx_att_get_quote_fn)fn)(report_data, NULL, 0, NULL, quote, quote_size, 0);
}

static void call_tdx_att_free_quote(void *fn, uint8_t *quote) {
	((tdx_att_free_quote_fn)fn)(quote);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"
)

// dlLibrary is libtdx_attest opened with dlopen.
type dlLibrary struct {
	handle      unsafe.Pointer
	getQuoteFn  unsafe.Pointer
	freeQuoteFn unsafe.Pointer
}

// openLibrary opens the library at path and resolves the quote functions.
func openLibrary(path string) (attestLibrary, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	handle := C.dlopen(cPath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, fmt.Errorf("dlopen: %w", dlError())
	}

	getQuote, err := lookupSymbol(handle, "tdx_att_get_quote")
	if err != nil {
		C.dlclose(handle)
		return nil, err
	}
	freeQuote, err := lookupSymbol(handle, "tdx_att_free_quote")
	if err != nil {
		C.dlclose(handle)
		return nil, err
	}

	return &dlLibrary{handle: handle, getQuoteFn: getQuote, freeQuoteFn: freeQuote}, nil
}

func (l *dlLibrary) getQuote(reportData *[ReportDataSize]byte) (unsafe.Pointer, uint32, int) {
	var quote *C.uint8_t
	var size C.uint32_t
	status := C.call_tdx_att_get_quote(l.getQuoteFn, unsafe.Pointer(&reportData[0]), &quote, &size)
	return unsafe.Pointer(quote), uint32(size), int(status)
}

func (l *dlLibrary) freeQuote(buf unsafe.Pointer) {
	C.call_tdx_att_free_quote(l.freeQuoteFn, (*C.uint8_t)(buf))
}

func lookupSymbol(handle unsafe.Pointer, name string) (unsafe.Pointer, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	C.dlerror() // clear stale errors
	sym := C.dlsym(handle, cName)
	if sym == nil {
		return nil, fmt.Errorf("resolving %s: %w", name, dlError())
	}
	return sym, nil
}

func dlError() error {
	msg := C.dlerror()
	if msg == nil {
		return errors.New("unknown dynamic linker error")
	}
	return errors.New(C.GoString(msg))
}
