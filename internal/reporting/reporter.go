package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Reporter defines the interface for writing run summaries to an output.
type Reporter interface {
	// Write renders one finished run.
	Write(summary *schemas.RunSummary) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath string) (Reporter, error) {
	switch format {
	case "json", "csv":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
		}
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
		}
		writer = f
	}

	if format == "csv" {
		return NewCSVReporter(writer), nil
	}
	return NewJSONReporter(writer), nil
}

// JSONReporter writes the whole summary as one indented JSON document.
type JSONReporter struct {
	w io.WriteCloser
}

// NewJSONReporter takes ownership of w.
func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{w: w}
}

func (r *JSONReporter) Write(summary *schemas.RunSummary) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.w.Close()
}

var csvHeader = []string{
	"run_id", "company", "url", "contact_url", "status", "filled_field_count",
	"detection_method", "source_url", "message", "error_type", "error_details",
	"started_at", "finished_at", "duration_ms",
}

// CSVReporter writes one row per outcome, in processing order.
type CSVReporter struct {
	w io.WriteCloser
}

// NewCSVReporter takes ownership of w.
func NewCSVReporter(w io.WriteCloser) *CSVReporter {
	return &CSVReporter{w: w}
}

func (r *CSVReporter) Write(summary *schemas.RunSummary) error {
	cw := csv.NewWriter(r.w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, o := range summary.Outcomes {
		row := []string{
			summary.RunID,
			o.Target.CompanyName,
			o.Target.URL,
			o.Target.ContactURL,
			string(o.Status),
			strconv.Itoa(o.FilledFieldCount),
			string(o.DetectionMethod),
			o.SourceURL,
			o.Message,
			string(o.ErrorKind),
			o.ErrorDetails,
			formatTime(o.StartedAt),
			formatTime(o.FinishedAt),
			strconv.FormatInt(o.Duration().Milliseconds(), 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func (r *CSVReporter) Close() error {
	return r.w.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
