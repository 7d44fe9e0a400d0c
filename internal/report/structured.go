package report

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/anstrom/bannerscan/internal/scanning"
)

// document is the structured form of a host result with its summary.
type document struct {
	scanning.HostScanResult `yaml:",inline"`
	Summary                 scanning.Counts       `json:"summary" yaml:"summary"`
	Open                    []scanning.PortResult `json:"open" yaml:"open"`
}

func newDocument(result *scanning.HostScanResult) document {
	return document{
		HostScanResult: *result,
		Summary:        result.Counts(),
		Open:           sortedByPort(result.Open()),
	}
}

// JSONRenderer writes the full host result and its open subset as JSON.
type JSONRenderer struct{}

func (JSONRenderer) Format() string    { return "json" }
func (JSONRenderer) Extension() string { return "json" }

func (JSONRenderer) Render(w io.Writer, result *scanning.HostScanResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newDocument(result))
}

// YAMLRenderer writes the full host result and its open subset as YAML.
type YAMLRenderer struct{}

func (YAMLRenderer) Format() string    { return "yaml" }
func (YAMLRenderer) Extension() string { return "yaml" }

func (YAMLRenderer) Render(w io.Writer, result *scanning.HostScanResult) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(newDocument(result)); err != nil {
		return err
	}
	return encoder.Close()
}
