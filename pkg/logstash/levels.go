package logstash

import "strings"

// Canonical level ranks. Higher ranks are more verbose.
const (
	RankTrace = 600
	RankDebug = 500
	RankInfo  = 400
	RankWarn  = 300
	RankError = 200
	RankFatal = 100
	RankOff   = 0
)

var levelRanks = map[string]int{
	"TRACE": RankTrace,
	"DEBUG": RankDebug,
	"INFO":  RankInfo,
	"WARN":  RankWarn,
	"ERROR": RankError,
	"FATAL": RankFatal,
	"OFF":   RankOff,
}

// NormalizeLevel upper-cases and trims a level token.
func NormalizeLevel(level string) string {
	return strings.ToUpper(strings.TrimSpace(level))
}

// Rank returns the verbosity rank of a level token. Matching is
// case-insensitive; unknown tokens rank as DEBUG.
func Rank(level string) int {
	if rank, ok := levelRanks[NormalizeLevel(level)]; ok {
		return rank
	}
	return RankDebug
}

// KnownLevel reports whether level is one of the canonical tokens.
func KnownLevel(level string) bool {
	_, ok := levelRanks[NormalizeLevel(level)]
	return ok
}
