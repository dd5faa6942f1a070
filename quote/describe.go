package quote

import (
	"fmt"

	"github.com/google/go-tdx-guest/abi"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Describe parses the complete quote, including its signature data, and renders it as indented JSON.
func Describe(rawQuote []byte) ([]byte, error) {
	parsed, err := abi.QuoteToProto(rawQuote)
	if err != nil {
		return nil, fmt.Errorf("parsing quote: %w", err)
	}
	msg, ok := parsed.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type %T", parsed)
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
}
