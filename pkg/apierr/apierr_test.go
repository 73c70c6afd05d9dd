package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFrom(t *testing.T) {
	coded := InvalidCursor(errors.New("line 9"))
	tests := []struct {
		name   string
		err    error
		code   Code
		status int
	}{
		{"coded", coded, CodeInvalidCursor, http.StatusBadRequest},
		{"wrapped coded", fmt.Errorf("analyze: %w", coded), CodeInvalidCursor, http.StatusBadRequest},
		{"deadline", fmt.Errorf("pre-resolve: %w", context.DeadlineExceeded), CodeResolutionTimeout, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), CodeInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.err)
			if got.Code() != tt.code || got.Status() != tt.status {
				t.Errorf("From(%v) = %s/%d, want %s/%d", tt.err, got.Code(), got.Status(), tt.code, tt.status)
			}
		})
	}
	if From(nil) != nil {
		t.Error("From(nil) != nil")
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	e := ResolutionTimeout(context.DeadlineExceeded)
	if !errors.Is(e, context.DeadlineExceeded) {
		t.Error("cause not reachable through errors.Is")
	}
	resp := e.Response("req-1")
	if resp.Error.Code != CodeResolutionTimeout || resp.Error.Message == "" || resp.Error.RequestID != "req-1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestErrorIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("columns: %w", InvalidCursor(errors.New("line 9")))
	if !errors.Is(err, InvalidCursor(nil)) {
		t.Error("same code should match")
	}
	if errors.Is(err, SQLRequired()) {
		t.Error("different code should not match")
	}
}
