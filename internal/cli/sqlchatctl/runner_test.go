package sqlchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunStatusCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"connected":true,"turns":2}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--api-key", "k1",
		"status",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/session" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), `"turns": 2`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunConnectSendsParams(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/session/connect" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"connected":true}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"connect", "--driver", "postgres", "--host", "db", "--user", "analyst", "--database", "uni",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got["driver"] != "postgres" || got["host"] != "db" || got["user"] != "analyst" || got["database"] != "uni" {
		t.Fatalf("params = %v", got)
	}
	if got["port"] != "" {
		t.Fatalf("port = %q, want server default", got["port"])
	}
}

func TestRunAskPrintsAnswer(t *testing.T) {
	var question string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		question = body["question"]
		_, _ = w.Write([]byte(`{"turn":1,"sql":"SELECT COUNT(*) FROM students","answer":"There are 42 students."}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "ask", "--show-sql", "how", "many", "students?"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if question != "how many students?" {
		t.Fatalf("question = %q", question)
	}
	want := "SQL: SELECT COUNT(*) FROM students\n\nThere are 42 students.\n"
	if stdout.String() != want {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskRendersRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"turn":1,"sql":"SELECT name, age FROM students","answer":"- Ada\n- Linus","result":{"columns":["name","age"],"rows":[["Ada",36],["Linus",null]],"truncated":true}}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "ask", "--rows", "list students"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	out := stdout.String()
	for _, token := range []string{"name", "age", "Ada", "36", "Linus", "NULL", "(truncated after 2 rows)", "- Ada"} {
		if !strings.Contains(out, token) {
			t.Fatalf("stdout missing %q:\n%s", token, out)
		}
	}
}

func TestRunSchemaPrintsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"dialect":"MySQL","text":"CREATE TABLE students (\n\tid int\n)"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "schema"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "CREATE TABLE students (") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunExportCommand(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"key":"sessions/s/turn-00003.parquet"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"--base-url", srv.URL, "export", "3"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/session/turns/3/export" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error_code":"NOT_CONNECTED"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "ask", "hello"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 409") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"unknown"},
		{"export", "zero"},
		{"--no-such-flag", "status"},
		{"ask"},
		{"export"},
		{"export", "1", "2"},
		{"status", "extra"},
		{"schema", "extra"},
	} {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("args %v exit code = %d, stderr=%s", args, code, stderr.String())
		}
		if stderr.Len() == 0 {
			t.Fatalf("args %v expected usage output", args)
		}
	}
}
