package secrets

import (
	"context"
	"errors"
	"testing"
)

func TestEnvProvider_GetSecret(t *testing.T) {
	t.Setenv("LOGPIPE_SECRET_DB_PASSWORD", "hunter2")
	t.Setenv("LOGPIPE_SECRET_INGEST_KEY_V2", "k2")
	p := NewEnvProvider("LOGPIPE_SECRET_")

	tests := []struct {
		name    string
		secret  string
		want    string
		wantErr bool
	}{
		{name: "hyphenated", secret: "db-password", want: "hunter2"},
		{name: "dotted", secret: "ingest-key.v2", want: "k2"},
		{name: "missing", secret: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.secret)
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("Expected ErrNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetSecret() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEnvProvider_EmptyCountsAsUnset(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	_, err := NewEnvProvider("X_").GetSecret(context.Background(), "empty")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an empty variable, got %v", err)
	}
}
