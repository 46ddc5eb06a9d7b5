package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"logpipe-hq/logpipe/pkg/format"
	"logpipe-hq/logpipe/pkg/logstash"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is one human-readable line per log (default).
	FormatText OutputFormat = "text"
	// FormatJSON is one JSON object per line.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV with a header row.
	FormatCSV OutputFormat = "csv"
)

var csvHeader = []string{"id", "createdAt", "logger", "level", "message", "tags"}

// ParseOutputFormat validates an --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text, json or csv)", s)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// UseColor reports whether f is a terminal that should get ANSI colours.
// NO_COLOR disables colours regardless.
func UseColor(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTerminal(f)
}

// LogWriter prints batches of logs to a writer in one output format.
type LogWriter struct {
	w       io.Writer
	format  OutputFormat
	console *format.ConsoleFormatter
	json    *json.Encoder
	csv     *csv.Writer
	header  bool
}

// NewLogWriter creates a LogWriter. colors only affects FormatText.
func NewLogWriter(w io.Writer, f OutputFormat, colors bool) *LogWriter {
	lw := &LogWriter{w: w, format: f}
	switch f {
	case FormatJSON:
		lw.json = json.NewEncoder(w)
	case FormatCSV:
		lw.csv = csv.NewWriter(w)
	default:
		lw.format = FormatText
		lw.console = format.NewConsoleFormatter(colors)
	}
	return lw
}

// Write prints logs in order.
func (lw *LogWriter) Write(logs []*logstash.Log) error {
	if len(logs) == 0 {
		return nil
	}
	switch lw.format {
	case FormatJSON:
		for _, log := range logs {
			if err := lw.json.Encode(log); err != nil {
				return err
			}
		}
		return nil

	case FormatCSV:
		if !lw.header {
			if err := lw.csv.Write(csvHeader); err != nil {
				return err
			}
			lw.header = true
		}
		for _, log := range logs {
			record := []string{
				strconv.FormatInt(log.ID, 10),
				log.CreatedAt.UTC().Format(time.RFC3339Nano),
				log.Logger,
				log.Level,
				log.Message,
				strings.Join(log.Tags, ","),
			}
			if err := lw.csv.Write(record); err != nil {
				return err
			}
		}
		lw.csv.Flush()
		return lw.csv.Error()

	default:
		out := lw.console.Logs(logs)
		if _, err := lw.w.Write(out.Body); err != nil {
			return err
		}
		_, err := io.WriteString(lw.w, "\n")
		return err
	}
}
