package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// serve pushes one request through the middleware-wrapped handler.
func serve(t *testing.T, m *Metrics, target string, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	rec := httptest.NewRecorder()
	Middleware(m)(h).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_IssuesCorrelationID(t *testing.T) {
	withTestTracer(t)
	m, _ := newTestMetrics(t)

	var cid string
	rec := serve(t, m, "/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	if len(cid) != 32 {
		t.Fatalf("correlation ID %q in handler context, want a 32-char trace ID", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("X-Correlation-ID header = %q, want %q", got, cid)
	}
}

func TestMiddleware_OpensServerSpan(t *testing.T) {
	exp := withTestTracer(t)
	m, _ := newTestMetrics(t)

	serve(t, m, "/api/jobs", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /api/jobs" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestMiddleware_RecordsRequestDuration(t *testing.T) {
	withTestTracer(t)
	m, reader := newTestMetrics(t)

	serve(t, m, "/api/jobs", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	met := findMetric(rm, "tomeglot.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("unexpected metric shape: %T", met.Data)
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	attrs := map[string]string{}
	for _, kv := range dp.Attributes.ToSlice() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs["method"] != "GET" || attrs["path"] != "/api/jobs" {
		t.Errorf("attributes = %v, want method=GET path=/api/jobs", attrs)
	}
}

func TestMiddleware_StatusCodeOnSpan(t *testing.T) {
	exp := withTestTracer(t)
	m, _ := newTestMetrics(t)

	rec := serve(t, m, "/api/jobs/nope", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	var got int64 = -1
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" {
			got = a.Value.AsInt64()
		}
	}
	if got != 404 {
		t.Errorf("span http.response.status_code = %d, want 404", got)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	withTestTracer(t)
	m, _ := newTestMetrics(t)

	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	var cid string
	req := httptest.NewRequest("GET", "/api/jobs", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if cid != upstream {
		t.Errorf("handler correlation ID = %q, want upstream trace %q", cid, upstream)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("X-Correlation-ID = %q, want %q", got, upstream)
	}
}

func TestMiddleware_HandlerCanReachUnderlyingWriter(t *testing.T) {
	withTestTracer(t)
	m, _ := newTestMetrics(t)

	// The websocket upgrade needs http.ResponseController to see through the
	// status recorder; Flush exercises the same Unwrap path.
	var flushErr error
	serve(t, m, "/api/events", func(w http.ResponseWriter, _ *http.Request) {
		flushErr = http.NewResponseController(w).Flush()
	})
	if flushErr != nil {
		t.Errorf("Flush through the middleware wrapper: %v", flushErr)
	}
}
