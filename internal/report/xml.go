package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/anstrom/bannerscan/internal/scanning"
)

// ScanXML is the root element for XML serialization of a host result.
type ScanXML struct {
	XMLName   xml.Name           `xml:"scanresult"`
	RunID     string             `xml:"run_id,attr,omitempty"`
	StartTime string             `xml:"start_time,attr"`
	EndTime   string             `xml:"end_time,attr"`
	Duration  string             `xml:"duration,attr"`
	Host      HostXML            `xml:"host"`
	Range     scanning.PortRange `xml:"range"`
}

// HostXML represents a scanned host for XML serialization.
type HostXML struct {
	Address  string    `xml:"Address"`
	Hostname string    `xml:"Hostname,omitempty"`
	Ports    []PortXML `xml:"Ports>Port,omitempty"`
}

// PortXML represents one probe result for XML serialization.
type PortXML struct {
	Number   uint16 `xml:"Number"`
	Protocol string `xml:"Protocol"`
	State    string `xml:"State"`
	Service  string `xml:"Service,omitempty"`
	Banner   string `xml:"Banner,omitempty"`
	Error    string `xml:"Error,omitempty"`
	Duration string `xml:"Duration,omitempty"`
}

// XMLRenderer writes the full host result, every port included, as XML.
type XMLRenderer struct{}

func (XMLRenderer) Format() string    { return "xml" }
func (XMLRenderer) Extension() string { return "xml" }

func (XMLRenderer) Render(w io.Writer, result *scanning.HostScanResult) error {
	if result == nil {
		return &scanning.ScanError{Op: "encode XML", Err: fmt.Errorf("nil result")}
	}

	doc := &ScanXML{
		RunID:     result.RunID,
		StartTime: result.StartTime.Format(time.RFC3339Nano),
		EndTime:   result.EndTime.Format(time.RFC3339Nano),
		Duration:  result.Duration.String(),
		Range:     result.Range,
		Host: HostXML{
			Address:  result.Host,
			Hostname: result.Hostname,
			Ports:    make([]PortXML, len(result.Results)),
		},
	}
	for i, p := range result.Results {
		doc.Host.Ports[i] = PortXML{
			Number:   p.Port,
			Protocol: "tcp",
			State:    string(p.Status),
			Service:  p.Service,
			Banner:   p.Banner,
			Error:    p.ErrorDetail,
			Duration: p.Duration.String(),
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return &scanning.ScanError{Op: "write XML header", Err: err}
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return &scanning.ScanError{Op: "encode XML", Err: err}
	}
	return nil
}

// LoadXML reads a host result previously written by XMLRenderer.
func LoadXML(path string) (*scanning.HostScanResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &scanning.ScanError{Op: "open file", Err: err}
	}
	defer file.Close()

	var doc ScanXML
	if err := xml.NewDecoder(file).Decode(&doc); err != nil {
		return nil, &scanning.ScanError{Op: "decode XML", Err: err}
	}

	result := &scanning.HostScanResult{
		RunID:    doc.RunID,
		Host:     doc.Host.Address,
		Hostname: doc.Host.Hostname,
		Range:    doc.Range,
		Results:  make([]scanning.PortResult, len(doc.Host.Ports)),
	}
	if result.StartTime, err = time.Parse(time.RFC3339Nano, doc.StartTime); err != nil {
		return nil, &scanning.ScanError{Op: "parse start time", Err: err}
	}
	if result.EndTime, err = time.Parse(time.RFC3339Nano, doc.EndTime); err != nil {
		return nil, &scanning.ScanError{Op: "parse end time", Err: err}
	}
	if result.Duration, err = time.ParseDuration(doc.Duration); err != nil {
		return nil, &scanning.ScanError{Op: "parse duration", Err: err}
	}

	for i, p := range doc.Host.Ports {
		d, err := time.ParseDuration(p.Duration)
		if err != nil {
			d = 0
		}
		result.Results[i] = scanning.PortResult{
			Host:        doc.Host.Address,
			Port:        p.Number,
			Status:      scanning.Status(p.State),
			Service:     p.Service,
			Banner:      p.Banner,
			ErrorDetail: p.Error,
			Duration:    d,
		}
	}
	return result, nil
}
