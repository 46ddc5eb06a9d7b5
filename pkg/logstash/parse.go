package logstash

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e11 seconds is year 5138; 1e11 milliseconds is March 1973.
const epochMillisThreshold = 1e11

var parserPool fastjson.ParserPool

// ParseLog decodes a single JSON log object.
func ParseLog(data []byte) (*Log, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, NewValidationError("", fmt.Sprintf("invalid JSON: %v", err))
	}
	return logFromValue(v)
}

// ParseLogs decodes either a single JSON log object or an array of them.
func ParseLogs(data []byte) ([]*Log, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, NewValidationError("", fmt.Sprintf("invalid JSON: %v", err))
	}

	if v.Type() != fastjson.TypeArray {
		l, err := logFromValue(v)
		if err != nil {
			return nil, err
		}
		return []*Log{l}, nil
	}

	arr, _ := v.Array()
	logs := make([]*Log, 0, len(arr))
	for i, item := range arr {
		l, err := logFromValue(item)
		if err != nil {
			return nil, fmt.Errorf("log %d: %w", i, err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func logFromValue(v *fastjson.Value) (*Log, error) {
	if v.Type() != fastjson.TypeObject {
		return nil, NewValidationError("", "log must be a JSON object")
	}

	logger, err := stringField(v, "logger")
	if err != nil {
		return nil, err
	}
	level, err := stringField(v, "level")
	if err != nil {
		return nil, err
	}
	message, err := stringField(v, "message")
	if err != nil {
		return nil, err
	}

	createdAt, err := parseCreatedAt(v.Get("createdAt"))
	if err != nil {
		return nil, err
	}

	tags, err := parseTags(v.Get("tags"))
	if err != nil {
		return nil, err
	}

	l, err := NewLog(logger, level, message, createdAt, tags)
	if err != nil {
		return nil, err
	}

	if idVal := v.Get("id"); idVal != nil && idVal.Type() != fastjson.TypeNull {
		id, err := idVal.Int64()
		if err != nil || id < 0 {
			return nil, NewValidationError("id", "id must be a non-negative integer")
		}
		l = l.WithID(id)
	}
	return l, nil
}

func stringField(v *fastjson.Value, field string) (string, error) {
	f := v.Get(field)
	if f == nil || f.Type() == fastjson.TypeNull {
		return "", nil
	}
	s, ok := scalarString(f)
	if !ok {
		return "", NewValidationError(field, field+" must be a scalar")
	}
	return s, nil
}

// scalarString renders strings, numbers and booleans as text.
func scalarString(v *fastjson.Value) (string, bool) {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes()), true
	case fastjson.TypeNumber:
		return v.String(), true
	case fastjson.TypeTrue:
		return "true", true
	case fastjson.TypeFalse:
		return "false", true
	default:
		return "", false
	}
}

func parseCreatedAt(v *fastjson.Value) (time.Time, error) {
	if v == nil || v.Type() == fastjson.TypeNull {
		return time.Time{}, NewValidationError("createdAt", "createdAt is required")
	}

	switch v.Type() {
	case fastjson.TypeNumber:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, NewValidationError("createdAt", err.Error())
		}
		return epochToTime(f), nil
	case fastjson.TypeString:
		t, err := ParseTime(string(v.GetStringBytes()))
		if err != nil {
			return time.Time{}, NewValidationError("createdAt", err.Error())
		}
		return t, nil
	default:
		return time.Time{}, NewValidationError("createdAt", "createdAt must be a number or a string")
	}
}

// ParseTime accepts epoch seconds, epoch milliseconds or RFC 3339 text.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, fmt.Errorf("invalid epoch %q", s)
		}
		return epochToTime(f), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func epochToTime(f float64) time.Time {
	if math.Abs(f) >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func parseTags(v *fastjson.Value) ([]string, error) {
	if v == nil || v.Type() == fastjson.TypeNull {
		return nil, nil
	}

	if v.Type() != fastjson.TypeArray {
		s, ok := scalarString(v)
		if !ok {
			return nil, NewValidationError("tags", "tags must be an array of scalars")
		}
		return []string{s}, nil
	}

	arr, _ := v.Array()
	tags := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := scalarString(item)
		if !ok {
			return nil, NewValidationError("tags", "tags must be an array of scalars")
		}
		tags = append(tags, s)
	}
	return tags, nil
}
