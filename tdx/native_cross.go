//go:build !linux || !cgo

package tdx

import "errors"

func openLibrary(_ string) (attestLibrary, error) {
	return nil, errors.New("loading libtdx_attest is only supported on linux with cgo enabled")
}
