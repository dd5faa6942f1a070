package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/edgelesssys/go-tdx-attest/quote"
)

func main() {
	if err := parseBlob(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseBlob() error {
	path := "quote"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	rawQuote, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	header, err := quote.ParseHeader(rawQuote)
	if err != nil {
		return err
	}
	measurements, err := quote.Measure(rawQuote)
	if err != nil {
		return err
	}

	prettyPrint, err := json.MarshalIndent(struct {
		Header       quote.Header       `json:"header"`
		Measurements quote.Measurements `json:"measurements"`
	}{header, measurements}, "", " ")
	if err != nil {
		return err
	}
	fmt.Println(string(prettyPrint))

	if header.IsTDXv4() {
		dump, err := quote.Describe(rawQuote)
		if err != nil {
			return err
		}
		fmt.Println(string(dump))
	}

	return nil
}
