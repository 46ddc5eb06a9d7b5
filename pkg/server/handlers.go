package server

import (
	"net/http"

	"logpipe-hq/logpipe/pkg/format"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/security/auth"
	"logpipe-hq/logpipe/pkg/telemetry/tracing"
)

const (
	noticeLogSaved  = "Log saved successfully"
	noticeLogsSaved = "Logs saved successfully"
)

// handleWrite stores the log or array of logs in the request body. The
// confirmation uses the requested format; errors are always JSON.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "logpipe.write")
	defer span.End()

	params := ParamsFromQuery(r.URL.Query())
	errFormat := s.formats.Get(format.JSON)
	callerKey := auth.CallerKey(ctx)
	tracing.SetScopeAttribute(span, callerKey)

	body, err := readBody(w, r, s.config.MaxBodyBytes)
	if err != nil {
		tracing.SetStatus(span, err)
		writeError(w, r, s.logger, errFormat, err)
		return
	}

	logs, err := logstash.ParseLogs(body)
	if err == nil && len(logs) == 0 {
		err = errNoLogs
	}
	if err == nil {
		err = s.checkAge(logs)
	}
	if err != nil {
		tracing.SetStatus(span, err)
		writeError(w, r, s.logger, errFormat, err)
		return
	}
	tracing.SetCountAttribute(span, tracing.AttrBatchSize, len(logs))

	if _, err := s.stash.AddLogs(ctx, logs, callerKey); err != nil {
		tracing.SetStatus(span, err)
		writeError(w, r, s.logger, errFormat, err)
		return
	}

	notice := noticeLogSaved
	if len(logs) > 1 {
		notice = noticeLogsSaved
	}
	writeOutput(w, s.formats.Get(params.Format()).Notice(format.NewNotice(notice)))
}

// checkAge rejects the whole batch when any log is older than MaxLogAge.
func (s *Server) checkAge(logs []*logstash.Log) error {
	if s.config.MaxLogAge <= 0 {
		return nil
	}
	cutoff := s.now().Add(-s.config.MaxLogAge)
	for _, log := range logs {
		if log.CreatedAt.Before(cutoff) {
			return errLogTooOld
		}
	}
	return nil
}

// handleRead answers a filtered query in the requested format.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "logpipe.read")
	defer span.End()

	params := ParamsFromQuery(r.URL.Query())
	f := s.formats.Get(params.Format())
	callerKey := auth.CallerKey(ctx)
	tracing.SetScopeAttribute(span, callerKey)

	filter, err := params.Filter()
	if err != nil {
		tracing.SetStatus(span, err)
		writeError(w, r, s.logger, f, err)
		return
	}
	tracing.SetFilterAttributes(span, filter)

	logs, err := s.stash.Get(ctx, filter, callerKey)
	if err != nil {
		tracing.SetStatus(span, err)
		writeError(w, r, s.logger, f, err)
		return
	}
	tracing.SetCountAttribute(span, tracing.AttrResultCount, len(logs))

	writeOutput(w, f.Logs(logs))
}

// handleNotFound answers unknown routes in the requested format.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	f := s.formats.Get(ParamsFromQuery(r.URL.Query()).Format())
	writeError(w, r, s.logger, f, errNotFound)
}
