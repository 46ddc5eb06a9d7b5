package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"logpipe-hq/logpipe/pkg/logstash"
)

// Request parameter names shared by /read, /write and /stream.
const (
	ParamFilter  = "filter" // Comma-separated tags, "*" for all
	ParamFormat  = "format"
	ParamFrom    = "from"
	ParamTo      = "to"
	ParamLimit   = "limit"
	ParamAfterID = "afterId"
	ParamLevel   = "level"
	ParamAuthKey = "authKey"
)

// allTags in the filter parameter selects every tag.
const allTags = "*"

// Params is the raw parameter set of a request or stream session. Stream
// filter updates are merged into it.
type Params map[string]string

// ParamsFromQuery takes the first value of each query parameter.
func ParamsFromQuery(values url.Values) Params {
	p := make(Params, len(values))
	for key, v := range values {
		if len(v) > 0 {
			p[key] = v[0]
		}
	}
	return p
}

// Merge applies update on top of p. The tag filter is always replaced, so
// an update without one selects every tag again.
func (p Params) Merge(update Params) Params {
	merged := make(Params, len(p)+len(update))
	for k, v := range p {
		merged[k] = v
	}
	delete(merged, ParamFilter)
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

// Format returns the requested output format name, or "".
func (p Params) Format() string {
	return strings.TrimSpace(p[ParamFormat])
}

// Filter builds a validated filter from the parameters. Malformed values
// yield a *logstash.FilterParseError.
func (p Params) Filter() (logstash.Filter, error) {
	var opts []logstash.FilterOption

	if tags := parseTags(p[ParamFilter]); len(tags) > 0 {
		opts = append(opts, logstash.WithTags(tags...))
	}

	from, err := p.time(ParamFrom)
	if err != nil {
		return logstash.Filter{}, err
	}
	to, err := p.time(ParamTo)
	if err != nil {
		return logstash.Filter{}, err
	}
	opts = append(opts, logstash.WithTimeRange(from, to))

	if raw := strings.TrimSpace(p[ParamLimit]); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return logstash.Filter{}, logstash.NewFilterParseError(ParamLimit, raw, err)
		}
		opts = append(opts, logstash.WithLimit(limit))
	}

	if raw := strings.TrimSpace(p[ParamAfterID]); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return logstash.Filter{}, logstash.NewFilterParseError(ParamAfterID, raw, err)
		}
		opts = append(opts, logstash.WithAfterID(id))
	}

	if level := strings.TrimSpace(p[ParamLevel]); level != "" {
		opts = append(opts, logstash.WithLevel(level))
	}

	f, err := logstash.NewFilter(opts...)
	if err != nil {
		return logstash.Filter{}, logstash.NewFilterParseError("filter", "", err)
	}
	return f, nil
}

func (p Params) time(param string) (time.Time, error) {
	raw := strings.TrimSpace(p[param])
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := logstash.ParseTime(raw)
	if err != nil {
		return time.Time{}, logstash.NewFilterParseError(param, raw, err)
	}
	return t, nil
}

// parseTags splits a comma-separated tag list. Empty input or "*" selects
// every tag.
func parseTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if tag == allTags {
			return nil
		}
		tags = append(tags, tag)
	}
	return tags
}

// ParseRules decodes a stream filter update. The message is either a JSON
// object of parameters or space-separated key=value rules.
func ParseRules(msg []byte) (Params, error) {
	text := strings.TrimSpace(string(msg))
	if strings.HasPrefix(text, "{") {
		return parseJSONRules(text)
	}

	update := make(Params)
	for _, rule := range strings.Fields(text) {
		key, value, ok := strings.Cut(rule, "=")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid rule %q", rule)
		}
		update[key] = value
	}
	return update, nil
}

func parseJSONRules(text string) (Params, error) {
	v, err := fastjson.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, fmt.Errorf("rules must be a JSON object: %w", err)
	}

	update := make(Params)
	var visitErr error
	obj.Visit(func(key []byte, value *fastjson.Value) {
		if visitErr != nil {
			return
		}
		switch value.Type() {
		case fastjson.TypeString:
			update[string(key)] = string(value.GetStringBytes())
		case fastjson.TypeNumber:
			update[string(key)] = value.String()
		case fastjson.TypeArray:
			// ["a","b"] is accepted for the tag filter.
			items, _ := value.Array()
			parts := make([]string, 0, len(items))
			for _, item := range items {
				if item.Type() != fastjson.TypeString {
					visitErr = fmt.Errorf("invalid rule %q: arrays must hold strings", key)
					return
				}
				parts = append(parts, string(item.GetStringBytes()))
			}
			update[string(key)] = strings.Join(parts, ",")
		case fastjson.TypeNull:
		default:
			visitErr = fmt.Errorf("invalid rule %q: unsupported value", key)
		}
	})
	if visitErr != nil {
		return nil, visitErr
	}
	return update, nil
}
