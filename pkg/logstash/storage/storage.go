package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"logpipe-hq/logpipe/pkg/logstash"
)

// DefaultTable is the log table name used when none is configured.
const DefaultTable = "logs"

var (
	errClosed = errors.New("storage closed")

	tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// ValidateTableName rejects names that cannot be safely interpolated into
// SQL as an identifier.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q: must match %s", name, tableNamePattern.String())
	}
	return nil
}

// whereBuilder accumulates SQL conditions and their arguments. placeholder
// renders the n-th (1-based) argument marker for the target dialect.
type whereBuilder struct {
	conditions  []string
	args        []interface{}
	placeholder func(n int) string
}

func (b *whereBuilder) add(condition string, args ...interface{}) {
	markers := make([]interface{}, len(args))
	for i := range args {
		markers[i] = b.placeholder(len(b.args) + i + 1)
	}
	b.conditions = append(b.conditions, fmt.Sprintf(condition, markers...))
	b.args = append(b.args, args...)
}

func (b *whereBuilder) next() string {
	return b.placeholder(len(b.args) + 1)
}

func (b *whereBuilder) String() string {
	return strings.Join(b.conditions, " AND ")
}

// levelArgs returns the normalized token and rank used by the level clause.
func levelArgs(filter logstash.Filter) (string, int) {
	level := logstash.NormalizeLevel(filter.Level)
	return level, logstash.Rank(level)
}
