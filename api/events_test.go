package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/internal/notify"
)

type sseStream struct {
	resp   *http.Response
	lines  *bufio.Scanner
	cancel context.CancelFunc
}

func openStream(t *testing.T, srv *httptest.Server, token string) *sseStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?access_token="+token, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s := &sseStream{resp: resp, lines: bufio.NewScanner(resp.Body), cancel: cancel}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	require.True(t, s.lines.Scan())
	require.Equal(t, ": connected", s.lines.Text())
	return s
}

// next returns the next event, skipping comments.
func (s *sseStream) next(t *testing.T) notify.Event {
	t.Helper()
	var kind string
	for s.lines.Scan() {
		line := s.lines.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var e notify.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
			require.Equal(t, kind, string(e.Kind))
			return e
		}
	}
	t.Fatalf("stream ended: %v", s.lines.Err())
	return notify.Event{}
}

func TestEventsStream(t *testing.T) {
	app := newTestApp(t, nil)
	srv := httptest.NewServer(app.router)
	// Registered first so it runs after the streams are closed.
	t.Cleanup(srv.Close)

	client := bearer(t, clientAddr, models.RoleClient)
	alice := bearer(t, freelancerAddr, models.RoleFreelancer)

	clientStream := openStream(t, srv, client)
	aliceStream := openStream(t, srv, alice)
	require.Eventually(t, func() bool { return app.broker.Subscribers() == 2 }, time.Second, 10*time.Millisecond)

	w := app.do(t, http.MethodPost, "/v1/jobs", client, map[string]string{"title": "Logo", "description": "A logo", "bounty": "1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	jobID := decode[jobBody](t, w).ID

	w = app.do(t, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/applications", jobID), alice, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	e := clientStream.next(t)
	require.Equal(t, notify.KindJobCreated, e.Kind)
	require.Equal(t, jobID, e.JobID)
	require.NotEmpty(t, e.ID)
	require.NotEmpty(t, e.Message)

	e = clientStream.next(t)
	require.Equal(t, notify.KindApplied, e.Kind)

	// Alice is not a party to the job creation.
	e = aliceStream.next(t)
	require.Equal(t, notify.KindApplied, e.Kind)
	require.Equal(t, freelancerAddr, e.Freelancer)
}

func TestEventsStream_RequiresToken(t *testing.T) {
	app := newTestApp(t, nil)
	w := app.do(t, http.MethodGet, "/v1/events", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
