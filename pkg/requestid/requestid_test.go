package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/garnizeh/cleardeal/pkg/requestid"
)

func TestContextRoundTrip(t *testing.T) {
	if got := requestid.FromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	ctx := requestid.ToContext(context.Background(), "abc")
	if got := requestid.FromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestid.FromRequest(r)
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"reused", "7d444840-9dc0-11d1-b245-5ffdce74fad2", true},
		{"garbage replaced", "not-a-uuid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(requestid.Header, tt.incoming)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			got := rr.Header().Get(requestid.Header)
			if got == "" || got != seen {
				t.Fatalf("expected response header to match context id, got %q vs %q", got, seen)
			}
			if tt.keep && got != tt.incoming {
				t.Fatalf("expected incoming id to be kept, got %q", got)
			}
			if !tt.keep && got == tt.incoming {
				t.Fatalf("expected a fresh id, got %q", got)
			}
		})
	}
}
