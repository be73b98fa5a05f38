package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_FormatterByEnvironment(t *testing.T) {
	if _, ok := New("production", "info").Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatal("expected JSON formatter in production")
	}
	if _, ok := New("development", "info").Formatter.(*logrus.TextFormatter); !ok {
		t.Fatal("expected text formatter outside production")
	}
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	if got := New("development", "loud").GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", got)
	}
	if got := New("development", "debug").GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", got)
	}
}

func TestRequestLogger_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	h := RequestLogger(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"status":418`) {
		t.Fatalf("expected status in log line, got %s", out)
	}
	if !strings.Contains(out, `"path":"/health"`) {
		t.Fatalf("expected path in log line, got %s", out)
	}
}
