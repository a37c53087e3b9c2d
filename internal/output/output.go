// Package output renders command results as YAML, JSON or plain text.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format defines the output format for CLI commands.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Default is the format used when none or an unknown one is requested.
var Default Format = FormatYAML

// globalFormat is set by the root command's --output flag.
var globalFormat Format = FormatYAML

// Texter is implemented by values with a human-oriented rendering.
// Values without one fall back to YAML in text mode.
type Texter interface {
	Text() string
}

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatYAML, FormatJSON, FormatText:
		return Format(s), nil
	case "":
		return Default, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want yaml, json or text)", s)
	}
}

// SetFormat sets the global output format.
func SetFormat(f Format) {
	globalFormat = f
}

// CurrentFormat returns the global output format.
func CurrentFormat() Format {
	return globalFormat
}

// Print writes data to stdout in the configured format.
func Print(data any) error {
	return To(os.Stdout, globalFormat, data)
}

// To writes data to w in the given format.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case FormatText:
		if t, ok := data.(Texter); ok {
			s := t.Text()
			if s != "" && s[len(s)-1] != '\n' {
				s += "\n"
			}
			_, err := io.WriteString(w, s)
			return err
		}
		return To(w, FormatYAML, data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// IsStructured reports whether the current format is machine-readable.
// Commands print human-friendly notes only when it is not.
func IsStructured() bool {
	return globalFormat == FormatJSON || globalFormat == FormatYAML
}
