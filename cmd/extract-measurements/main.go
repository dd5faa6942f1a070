// extract-measurements prints the MRTD and RTMRs of a base64 encoded TDX quote.
package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/edgelesssys/go-tdx-attest/quote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	flagJSON         = "json"
	flagOutput       = "output"
	flagDump         = "dump"
	flagGithubOutput = "github-output"
)

var errNoQuoteField = errors.New("no 'quote' field in JSON")

var textLabels = map[string]string{
	quote.MRTD:  "MRTD:    ",
	quote.RTMR0: "RTMR[0]: ",
	quote.RTMR1: "RTMR[1]: ",
	quote.RTMR2: "RTMR[2]: ",
	quote.RTMR3: "RTMR[3]: ",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "extract-measurements <base64-quote> | --json [json-with-quote-field]",
		Short: "Extract TDX measurements (MRTD, RTMRs) from a base64 encoded quote",
		Long: "Extract TDX measurements (MRTD, RTMRs) from a base64 encoded quote.\n\n" +
			"With --json, the quote is read from the 'quote' field of a JSON object given as\n" +
			"argument or on stdin. If GITHUB_OUTPUT is set, key=value lines are appended to it.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, v)
		},
	}

	flags := cmd.Flags()
	flags.Bool(flagJSON, false, "read the quote from the 'quote' field of a JSON object")
	flags.StringP(flagOutput, "o", "text", "output format: text, json or yaml")
	flags.Bool(flagDump, false, "also print the fully parsed quote")
	flags.String(flagGithubOutput, "", "file to append key=value lines to")

	v.BindPFlags(flags)                          //nolint:errcheck
	v.BindEnv(flagGithubOutput, "GITHUB_OUTPUT") //nolint:errcheck
	return cmd
}

func runExtract(cmd *cobra.Command, args []string, v *viper.Viper) error {
	encoded, err := readEncodedQuote(args, v.GetBool(flagJSON), cmd.InOrStdin())
	if err != nil {
		return err
	}
	rawQuote, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return fmt.Errorf("decoding quote: %w", err)
	}

	measurements, err := quote.Measure(rawQuote)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := printMeasurements(out, measurements, v.GetString(flagOutput)); err != nil {
		return err
	}

	if v.GetBool(flagDump) {
		dump, err := quote.Describe(rawQuote)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(dump))
	}

	if path := v.GetString(flagGithubOutput); path != "" {
		if err := appendGithubOutput(path, measurements); err != nil {
			return fmt.Errorf("writing GitHub output: %w", err)
		}
	}
	return nil
}

// readEncodedQuote returns the base64 quote from the positional argument,
// or from the JSON object given as argument or on stdin.
func readEncodedQuote(args []string, fromJSON bool, stdin io.Reader) (string, error) {
	if !fromJSON {
		if len(args) == 0 {
			return "", errors.New("missing base64 quote argument")
		}
		return args[0], nil
	}

	var data []byte
	if len(args) > 0 {
		data = []byte(args[0])
	} else {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
	}

	var doc struct {
		Quote string `json:"quote"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parsing JSON: %w", err)
	}
	if doc.Quote == "" {
		return "", errNoQuoteField
	}
	return doc.Quote, nil
}

func printMeasurements(w io.Writer, m quote.Measurements, format string) error {
	switch format {
	case "text":
		for _, key := range quote.Keys {
			fmt.Fprintf(w, "%s%s\n", textLabels[key], m[key])
		}
		return nil
	case "json":
		out, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func appendGithubOutput(path string, m quote.Measurements) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	for _, key := range quote.Keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, m[key]); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}
