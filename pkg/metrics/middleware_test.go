package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/garnizeh/cleardeal/pkg/metrics"
)

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	m := metrics.NewMiddleware("test")
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.Collectors()...)

	r := mux.NewRouter()
	r.Use(m.Handler)
	r.HandleFunc("/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	for _, path := range []string{"/v1/jobs/1", "/v1/jobs/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var found bool
	for _, mf := range families {
		if mf.GetName() != metrics.RequestsCollectorName {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path"] == "/v1/jobs/{id}" && labels["code"] == "418" {
				found = true
				if got := metric.GetCounter().GetValue(); got != 2 {
					t.Fatalf("expected 2 requests, got %v", got)
				}
			}
			if labels["path"] == "/nope" {
				t.Fatalf("unmatched route must not be recorded")
			}
		}
	}
	if !found {
		t.Fatalf("request counter for route template not found")
	}
}

func TestDomainMetrics_DoNotPanic(t *testing.T) {
	metrics.IncreaseTransitionsTotal("apply", metrics.OutcomeOK)
	metrics.ObserveSettlement("fee", metrics.OutcomeOK, 0)
	metrics.IncreaseWebhookDeliveries(metrics.OutcomeError)
}
