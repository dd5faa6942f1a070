/*
Package quote decodes Intel TDX (SGX Quote 4) attestation quotes.

Only the version 4 layout is understood. The quote starts with a 48 byte header,
followed by the TD report the quote was generated over:

	┌─────────────────────────┐  0
	│     SGXQuote4Header     │
	│       (48 bytes)        │
	├─────────────────────────┤  48
	│   TD report, MRTD at    │
	│  +128, RTMR0-3 at +320  │
	│    (48 bytes each)      │
	├─────────────────────────┤  560
	│   signature, certs ...  │
	└─────────────────────────┘

Measurements are read at these fixed offsets. No signature or certificate is verified here.
*/
package quote

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the v4 quote header. The TD report starts right after it.
	HeaderSize = 48
	// RegisterSize is the size of a single SHA384 measurement register.
	RegisterSize = 48
	// MinMeasuredSize is the minimum quote length measurements can be extracted from.
	MinMeasuredSize = rtmrOffset + 4*RegisterSize

	mrtdOffset = HeaderSize + 128
	rtmrOffset = HeaderSize + 320
)

// Measurement register names, as used for keys in [Measurements].
const (
	MRTD  = "mrtd"
	RTMR0 = "rtmr0"
	RTMR1 = "rtmr1"
	RTMR2 = "rtmr2"
	RTMR3 = "rtmr3"
)

// Keys lists the measurement register names in register order.
var Keys = []string{MRTD, RTMR0, RTMR1, RTMR2, RTMR3}

// ErrQuoteTooShort is returned by [Measure] if the quote cannot hold all measurement registers.
var ErrQuoteTooShort = errors.New("quote is too short to hold measurements")

// Measurements maps register names to their lowercase hex encoded values.
// It is either empty or holds all of [Keys].
type Measurements map[string]string

// NewMeasurements renders the MRTD and the four RTMRs as Measurements.
func NewMeasurements(mrtd [RegisterSize]byte, rtmrs [4][RegisterSize]byte) Measurements {
	m := Measurements{MRTD: hex.EncodeToString(mrtd[:])}
	for i, rtmr := range rtmrs {
		m[Keys[i+1]] = hex.EncodeToString(rtmr[:])
	}
	return m
}

// ExtractMeasurements returns the MRTD and RTMR0-3 of a v4 quote.
// If the quote is too short, an empty map is returned.
func ExtractMeasurements(rawQuote []byte) Measurements {
	m, err := Measure(rawQuote)
	if err != nil {
		return Measurements{}
	}
	return m
}

// Measure is like [ExtractMeasurements], but reports a quote that is too short as [ErrQuoteTooShort].
func Measure(rawQuote []byte) (Measurements, error) {
	if len(rawQuote) < MinMeasuredSize {
		return nil, fmt.Errorf("%w (received: %d bytes, need: %d bytes)", ErrQuoteTooShort, len(rawQuote), MinMeasuredSize)
	}

	var rtmrs [4][RegisterSize]byte
	for i := range rtmrs {
		start := rtmrOffset + i*RegisterSize
		rtmrs[i] = [RegisterSize]byte(rawQuote[start : start+RegisterSize])
	}
	return NewMeasurements([RegisterSize]byte(rawQuote[mrtdOffset:mrtdOffset+RegisterSize]), rtmrs), nil
}
