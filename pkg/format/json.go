package format

import (
	"encoding/json"
	"net/http"

	"logpipe-hq/logpipe/pkg/logstash"
)

const mimeJSON = "application/json"

// JSONFormatter renders values as compact JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Logs renders logs as a JSON array. An empty batch renders as [].
func (f *JSONFormatter) Logs(logs []*logstash.Log) Output {
	if logs == nil {
		logs = []*logstash.Log{}
	}
	return f.marshal(logs, http.StatusOK)
}

// Notice renders {"message": ...}.
func (f *JSONFormatter) Notice(n Notice) Output {
	return f.marshal(n, http.StatusOK)
}

// Error renders {"error": <status text>, "message": <err>}.
func (f *JSONFormatter) Error(err error, status int) Output {
	status = statusOr(status, http.StatusInternalServerError)
	body := struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{
		Error:   errorTitle(status),
		Message: err.Error(),
	}
	return f.marshal(body, status)
}

func (f *JSONFormatter) marshal(v any, status int) Output {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]string{
			"error":   errorTitle(http.StatusInternalServerError),
			"message": err.Error(),
		})
		status = http.StatusInternalServerError
	}
	return Output{Body: data, MIMEType: mimeJSON, StatusCode: status}
}
