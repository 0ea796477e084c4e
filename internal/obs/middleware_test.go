package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("toko", []float64{1, 10}, registry)
	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/0b7e", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/1", nil))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/orders/{orderId}", "204"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}
	if miss := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unmatched", "404")); miss != 1 {
		t.Fatalf("expected unmatched 404 to share one label, got %v", miss)
	}

	samples := testutil.CollectAndCount(metrics.ReqDur)
	if samples == 0 {
		t.Fatalf("expected histogram sample")
	}

	if metrics.InFlight != nil {
		if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
			t.Fatalf("expected no in-flight requests, got %v", val)
		}
	}
}

func TestRequestLoggerScopesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/42", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var inner, access map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &inner); err != nil {
		t.Fatalf("decode inner: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &access); err != nil {
		t.Fatalf("decode access: %v", err)
	}
	if inner["request_id"] == "" || inner["request_id"] != access["request_id"] {
		t.Fatalf("request id not shared: %v vs %v", inner["request_id"], access["request_id"])
	}
	if access["level"] != "warn" || access["route"] != "/orders/{orderId}" {
		t.Fatalf("unexpected access log %v", access)
	}
}

func TestRequestLoggerCarriesAnnotatedUser(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware)
	r.Get("/cart/quote", func(w http.ResponseWriter, r *http.Request) {
		obs.AnnotateUser(r, "5b0d3c3e-2f7a-4d1c-9c55-0d7f2a7f6e01")
		w.WriteHeader(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cart/quote", nil))

	var access map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &access); err != nil {
		t.Fatalf("decode access: %v", err)
	}
	if access["user_id"] != "5b0d3c3e-2f7a-4d1c-9c55-0d7f2a7f6e01" || access["status"] != float64(200) {
		t.Fatalf("unexpected access log %v", access)
	}
}
