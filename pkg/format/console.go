package format

import (
	"net/http"
	"strings"

	"logpipe-hq/logpipe/pkg/logstash"
)

const (
	mimeText          = "text/plain; charset=utf-8"
	consoleTimeLayout = "2006-01-02 15:04:05"
)

// ANSI SGR sequences.
const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiWhite  = "\x1b[37m"
	ansiGray   = "\x1b[90m"
)

// palette maps lower-cased level names, tags and roles to colour codes.
var palette = map[string]string{
	"info":  ansiBlue,
	"warn":  ansiYellow,
	"error": ansiRed,
	"fatal": ansiRed,
	"trace": ansiGray,
	"debug": ansiGray,
	"log":   ansiWhite,

	"boldinfo":  ansiBlue + ansiBold,
	"boldwarn":  ansiYellow + ansiBold,
	"bolderror": ansiRed + ansiBold,
	"boldfatal": ansiRed + ansiBold,
	"boldtrace": ansiGray + ansiBold,
	"bolddebug": ansiGray + ansiBold,
	"boldlog":   ansiWhite + ansiBold,

	"logger": ansiBlue + ansiDim,
	"notice": ansiGreen + ansiDim,
	"noise":  ansiWhite + ansiDim,
}

// ConsoleFormatter renders one human-readable line per log:
//
//	[2024-03-01 12:00:00] [svc] [INFO] message tag1,tag2
type ConsoleFormatter struct {
	colors bool
}

// NewConsoleFormatter creates a console formatter, with ANSI colours when
// colors is true.
func NewConsoleFormatter(colors bool) *ConsoleFormatter {
	return &ConsoleFormatter{colors: colors}
}

// Logs renders logs one per line, timestamps in local time.
func (f *ConsoleFormatter) Logs(logs []*logstash.Log) Output {
	var b strings.Builder
	for i, log := range logs {
		if i > 0 {
			b.WriteByte('\n')
		}
		f.writeLog(&b, log)
	}
	return Output{Body: []byte(b.String()), MIMEType: mimeText, StatusCode: http.StatusOK}
}

func (f *ConsoleFormatter) writeLog(b *strings.Builder, log *logstash.Log) {
	level := logstash.NormalizeLevel(log.Level)
	lower := strings.ToLower(level)

	b.WriteString(f.paint("["+log.CreatedAt.Local().Format(consoleTimeLayout)+"] ", "noise"))
	b.WriteString(f.paint("["+log.Logger+"] ", "logger"))
	b.WriteString(f.paint("["+level+"] ", "bold"+lower, lower))

	// Tags take precedence over the level when colouring the message.
	b.WriteString(f.paint(log.Message, append(append([]string{}, log.Tags...), lower)...))
	if len(log.Tags) > 0 {
		b.WriteString(f.paint(" "+strings.Join(log.Tags, ","), "noise"))
	}
}

// Notice renders the notice message.
func (f *ConsoleFormatter) Notice(n Notice) Output {
	return Output{Body: []byte(f.paint(n.Message, "notice")), MIMEType: mimeText, StatusCode: http.StatusOK}
}

// Error renders "Error: <err>".
func (f *ConsoleFormatter) Error(err error, status int) Output {
	return Output{
		Body:       []byte(f.paint("Error: "+err.Error(), "error")),
		MIMEType:   mimeText,
		StatusCode: statusOr(status, http.StatusInternalServerError),
	}
}

// paint colours value with the first key found in the palette, or the
// "log" colour when none match.
func (f *ConsoleFormatter) paint(value string, keys ...string) string {
	if !f.colors {
		return value
	}
	code := palette["log"]
	for _, key := range keys {
		if c, ok := palette[strings.ToLower(key)]; ok {
			code = c
			break
		}
	}
	return code + value + ansiReset
}
