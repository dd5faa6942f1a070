package quote

import (
	"encoding/binary"
	"fmt"
)

/*
   Quote header layout based on:
   https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/c057b236790834cf7e547ebf90da91c53c7ed7f9/QuoteGeneration/quote_wrapper/common/inc/sgx_quote_4.h#L113
*/

// Version4 is the only quote version whose layout is understood.
const Version4 = 4

// TEETypeSGX is the type number referenced in the Quote header for SGX quotes.
const TEETypeSGX = 0x0

// TEETypeTDX is the type number referenced in the Quote header for TDX quotes.
const TEETypeTDX = 0x81

// Header is the header of an SGX/TDX quote compatible with v4 of the TrustedPlatform API.
type Header struct {
	Version            uint16
	AttestationKeyType uint16
	TEEType            uint32 // 0x0 = SGX, 0x81 = TDX
	QESVN              uint16
	PCESVN             uint16
	VendorID           [16]byte
	UserData           [20]byte
}

// ParseHeader parses the header of a quote. The header is not validated beyond its length.
func ParseHeader(rawQuote []byte) (Header, error) {
	if len(rawQuote) < HeaderSize {
		return Header{}, fmt.Errorf("quote header is too short to be parsed (received: %d bytes)", len(rawQuote))
	}

	return Header{
		Version:            binary.LittleEndian.Uint16(rawQuote[0:2]),
		AttestationKeyType: binary.LittleEndian.Uint16(rawQuote[2:4]),
		TEEType:            binary.LittleEndian.Uint32(rawQuote[4:8]),
		QESVN:              binary.LittleEndian.Uint16(rawQuote[8:10]),
		PCESVN:             binary.LittleEndian.Uint16(rawQuote[10:12]),
		VendorID:           [16]byte(rawQuote[12:28]),
		UserData:           [20]byte(rawQuote[28:48]),
	}, nil
}

// IsTDXv4 reports whether the header describes a version 4 TDX quote.
func (h Header) IsTDXv4() bool {
	return h.Version == Version4 && h.TEEType == TEETypeTDX
}

// Marshal serializes the header to its binary representation.
func (h Header) Marshal() [HeaderSize]byte {
	var result [HeaderSize]byte
	binary.LittleEndian.PutUint16(result[0:2], h.Version)
	binary.LittleEndian.PutUint16(result[2:4], h.AttestationKeyType)
	binary.LittleEndian.PutUint32(result[4:8], h.TEEType)
	binary.LittleEndian.PutUint16(result[8:10], h.QESVN)
	binary.LittleEndian.PutUint16(result[10:12], h.PCESVN)
	copy(result[12:28], h.VendorID[:])
	copy(result[28:48], h.UserData[:])
	return result
}
