package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/server"
)

// Environment variables read by the client commands.
const (
	envURL     = "LOGPIPE_URL"
	envAuthKey = "LOGPIPE_AUTH_KEY"
)

const authKeyHeader = "X-Auth-Key"

// clientFlags are shared by the commands that talk to a running server.
type clientFlags struct {
	url string
	key string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", os.Getenv(envURL), "server URL (default from the server config, env "+envURL+")")
	cmd.Flags().StringVarP(&f.key, "key", "k", os.Getenv(envAuthKey), "caller key (env "+envAuthKey+")")
}

// baseURL returns the flag value, or the address the configured server
// listens on.
func (f *clientFlags) baseURL(cfg *config.Config) string {
	if f.url != "" {
		return strings.TrimSuffix(f.url, "/")
	}
	return serverURL(cfg)
}

// setAuth sends the caller key as a header so it stays out of URLs and
// access logs.
func (f *clientFlags) setAuth(h http.Header) {
	if f.key != "" {
		h.Set(authKeyHeader, f.key)
	}
}

// serverURL is the base URL a local client reaches the configured server
// on. Wildcard listen hosts become localhost.
func serverURL(cfg *config.Config) string {
	host := cfg.Server.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}

// filterFlags are the query parameters shared by query and tail.
type filterFlags struct {
	tags    string
	from    string
	to      string
	limit   int
	afterID int64
	level   string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.tags, "filter", "f", "", "comma-separated tags, a log matches when it shares one (\"*\" for all)")
	cmd.Flags().StringVar(&f.from, "from", "", "earliest createdAt (epoch seconds or milliseconds, or ISO 8601)")
	cmd.Flags().StringVar(&f.to, "to", "", "latest createdAt (epoch seconds or milliseconds, or ISO 8601)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of logs")
	cmd.Flags().Int64Var(&f.afterID, "after-id", 0, "only logs with a greater id")
	cmd.Flags().StringVar(&f.level, "level", "", "minimum level (TRACE, DEBUG, INFO, WARN, ERROR, FATAL)")
}

// params converts the flags into request parameters. Unset flags are
// omitted.
func (f *filterFlags) params() server.Params {
	p := server.Params{}
	set := func(key, value string) {
		if value != "" {
			p[key] = value
		}
	}
	set(server.ParamFilter, f.tags)
	set(server.ParamFrom, f.from)
	set(server.ParamTo, f.to)
	set(server.ParamLevel, f.level)
	if f.level != "" && !logstash.KnownLevel(f.level) {
		slog.Warn("unknown level filters as DEBUG", "level", f.level)
	}
	if f.limit > 0 {
		p[server.ParamLimit] = strconv.Itoa(f.limit)
	}
	if f.afterID > 0 {
		p[server.ParamAfterID] = strconv.FormatInt(f.afterID, 10)
	}
	return p
}

func encodeParams(p server.Params) string {
	values := url.Values{}
	for k, v := range p {
		values.Set(k, v)
	}
	return values.Encode()
}

// responseError turns a non-2xx response body into an error.
func responseError(resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("server answered %d: %s", resp.StatusCode, msg)
}
