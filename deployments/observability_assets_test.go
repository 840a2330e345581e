package deployments

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "deployments", "observability", "prometheus", "sqlchat_rules.yaml")

	requiredAlerts := []string{
		"SQLChatLLMLatencyP95High",
		"SQLChatLLMErrors",
		"SQLChatGenerationFailuresHigh",
		"SQLChatConnectFailures",
		"SQLChatQueryLatencyP95High",
		"SQLChatHTTPErrorRateHigh",
		"SQLChatInvalidAPIKeys",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	requiredMetrics := []string{
		"sqlchat_llm_call_duration_seconds_bucket",
		"sqlchat_turns_total",
		"sqlchat_connect_attempts_total",
		"sqlchat_query_duration_seconds_bucket",
		"sqlchat_http_requests_total",
		"sqlchat_auth_failures_total",
	}
	for _, metricName := range requiredMetrics {
		if !strings.Contains(text, metricName) {
			t.Fatalf("rules missing metric reference %q", metricName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"sqlchat_rules.yaml",
		"job_name: sqlchat",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func TestComposeDefinesLocalDependencies(t *testing.T) {
	text := readAsset(t, "deployments", "docker-compose.yml")

	for _, service := range []string{"mysql:", "postgres:", "minio:", "ollama:", "prometheus:"} {
		if !strings.Contains(text, "\n  "+service) {
			t.Fatalf("compose file missing service %q", service)
		}
	}
}

func readAsset(t *testing.T, parts ...string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(append([]string{repoRoot(t)}, parts...)...))
	if err != nil {
		t.Fatalf("read asset: %v", err)
	}
	return string(content)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
