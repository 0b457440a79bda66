package taskdef

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuildUnknownType(t *testing.T) {
	t.Parallel()
	_, _, err := Build(Definition{Type: "carrier-pigeon", Name: "nope"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown type") {
		t.Fatalf("err = %v, want unknown type", err)
	}
}

func TestHTTPTask(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Probe") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("hello"))
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	headers := map[string]string{"X-Probe": "1"}

	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"ok", Definition{Type: "http", URL: srv.URL + "/ok", Headers: headers}, false},
		{"not found", Definition{Type: "http", URL: srv.URL + "/missing", Headers: headers}, true},
		{"expected status honored", Definition{Type: "http", URL: srv.URL + "/teapot", Headers: headers, ExpectStatus: http.StatusTeapot}, false},
		{"expected status mismatch", Definition{Type: "http", URL: srv.URL + "/ok", Headers: headers, ExpectStatus: http.StatusCreated}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			task, _, err := Build(tt.def, srv.Client())
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			_, err = task(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("task err = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPTaskRequiresURL(t *testing.T) {
	t.Parallel()
	_, _, err := Build(Definition{Type: "http"}, nil)
	if err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestShellTask(t *testing.T) {
	t.Parallel()
	task, _, err := Build(Definition{Type: "shell", Command: "echo hello"}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out, err := task(context.Background())
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if out != "hello" {
		t.Fatalf("out = %q, want hello", out)
	}

	task, _, err = Build(Definition{Type: "shell", Command: "exit 3"}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := task(context.Background()); err == nil {
		t.Fatal("expected failure for non-zero exit")
	}
}

func TestSleepTaskFailurePlan(t *testing.T) {
	t.Parallel()
	task, _, err := Build(Definition{Type: "sleep", FailFirst: 2}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 1; i <= 2; i++ {
		if _, err := task(context.Background()); err == nil {
			t.Fatalf("attempt %d: expected planned failure", i)
		}
	}
	if _, err := task(context.Background()); err != nil {
		t.Fatalf("attempt 3: %v", err)
	}
}

func TestBuildAllNamesOffender(t *testing.T) {
	t.Parallel()
	defs := []Definition{
		{Type: "sleep"},
		{Type: "bogus"},
	}
	_, _, err := BuildAll(defs, nil)
	if err == nil || !strings.Contains(err.Error(), "tasks[1]") {
		t.Fatalf("err = %v, want tasks[1] prefix", err)
	}
}
