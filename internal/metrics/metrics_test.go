package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPushEmptyGatewayIsNoop(t *testing.T) {
	if err := Push("", "ingest"); err != nil {
		t.Errorf("Push(\"\") error: %v", err)
	}
}

func TestPush(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	RunsTotal.WithLabelValues("push-test", "success").Inc()

	if err := Push(srv.URL, "ingest_tvl"); err != nil {
		t.Fatalf("Push error: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if gotPath != "/metrics/job/ingest_tvl" {
		t.Errorf("path = %q, want /metrics/job/ingest_tvl", gotPath)
	}
	if !strings.Contains(gotBody, "onchain_ingest_run_total") {
		t.Error("pushed body does not contain onchain_ingest_run_total")
	}
}

func TestPushGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := Push(srv.URL, "ingest"); err == nil {
		t.Error("expected error from failing gateway, got nil")
	}
}

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(RecordsWrittenTotal.WithLabelValues("c", "append"))
	RecordsWrittenTotal.WithLabelValues("c", "append").Add(3)
	if got := testutil.ToFloat64(RecordsWrittenTotal.WithLabelValues("c", "append")); got != before+3 {
		t.Errorf("records_written_total = %v, want %v", got, before+3)
	}
}
