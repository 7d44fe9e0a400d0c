// Package report renders host scan results into console tables and files.
package report

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/scanning"
)

const (
	outputDirPerm  = 0750
	outputFilePerm = 0640

	runIDPrefixLen = 8
)

// Renderer turns one host result into a single artifact.
type Renderer interface {
	// Format is the configuration name of the renderer, e.g. "csv".
	Format() string
	// Extension is the file extension without the dot; empty for console output.
	Extension() string
	Render(w io.Writer, result *scanning.HostScanResult) error
}

// Artifact is a file produced for a host.
type Artifact struct {
	Format string `json:"format"`
	Path   string `json:"path"`
}

var renderers = map[string]func() Renderer{
	"table": func() Renderer { return TableRenderer{} },
	"csv":   func() Renderer { return CSVRenderer{} },
	"html":  func() Renderer { return HTMLRenderer{} },
	"chart": func() Renderer { return ChartRenderer{} },
	"xml":   func() Renderer { return XMLRenderer{} },
	"json":  func() Renderer { return JSONRenderer{} },
	"yaml":  func() Renderer { return YAMLRenderer{} },
}

// NewRenderer returns the renderer registered for format.
func NewRenderer(format string) (Renderer, error) {
	factory, ok := renderers[strings.ToLower(format)]
	if !ok {
		return nil, errors.ErrConfigInvalid("report.formats", format)
	}
	return factory(), nil
}

// Writer renders each host result with a fixed set of renderers. Console
// renderers write to Console, the rest create files under Dir.
type Writer struct {
	Dir       string
	Console   io.Writer
	renderers []Renderer
	logger    *logging.Logger
}

// NewWriter builds a Writer for the given formats.
func NewWriter(dir string, formats []string, console io.Writer, logger *logging.Logger) (*Writer, error) {
	if console == nil {
		console = os.Stdout
	}
	if logger == nil {
		logger = logging.Default()
	}

	w := &Writer{Dir: dir, Console: console, logger: logger.WithComponent("report")}
	seen := make(map[string]bool)
	for _, format := range formats {
		if seen[format] {
			continue
		}
		seen[format] = true

		r, err := NewRenderer(format)
		if err != nil {
			return nil, err
		}
		w.renderers = append(w.renderers, r)
	}
	return w, nil
}

// Formats lists the configured formats in order.
func (w *Writer) Formats() []string {
	formats := make([]string, len(w.renderers))
	for i, r := range w.renderers {
		formats[i] = r.Format()
	}
	return formats
}

// Write renders result with every configured renderer. A failing renderer
// does not stop the others; all failures are joined into the returned error.
func (w *Writer) Write(result *scanning.HostScanResult) ([]Artifact, error) {
	var artifacts []Artifact
	var errs []error

	for _, r := range w.renderers {
		if r.Extension() == "" {
			if err := r.Render(w.Console, result); err != nil {
				errs = append(errs, errors.WrapReportError(r.Format(), result.Host, err))
			}
			continue
		}

		path, err := w.writeFile(r, result)
		if err != nil {
			w.logger.ErrorScan("Report rendering failed", result.Host, err, "format", r.Format())
			errs = append(errs, errors.WrapReportError(r.Format(), result.Host, err))
			continue
		}
		w.logger.Debug("Report written", "target", result.Host, "format", r.Format(), "path", path)
		artifacts = append(artifacts, Artifact{Format: r.Format(), Path: path})
	}

	return artifacts, stderrors.Join(errs...)
}

func (w *Writer) writeFile(r Renderer, result *scanning.HostScanResult) (path string, err error) {
	if err := os.MkdirAll(w.Dir, outputDirPerm); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path = filepath.Join(w.Dir, FileName(result, r.Extension()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePerm)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		// never leave a truncated artifact behind
		if err != nil {
			_ = os.Remove(f.Name())
			path = ""
		}
	}()

	if err := r.Render(f, result); err != nil {
		return "", err
	}
	return path, nil
}

// FileName returns "<host>_<runid8>.<ext>" with path-hostile characters replaced.
func FileName(result *scanning.HostScanResult, ext string) string {
	host := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', '%', '[', ']', ' ':
			return '_'
		}
		return r
	}, result.Host)

	runID := result.RunID
	if len(runID) > runIDPrefixLen {
		runID = runID[:runIDPrefixLen]
	}
	if runID == "" {
		return fmt.Sprintf("%s.%s", host, ext)
	}
	return fmt.Sprintf("%s_%s.%s", host, runID, ext)
}
