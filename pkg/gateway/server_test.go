package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dotsetgreg/repcue/pkg/broadcast"
	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/config"
	"github.com/dotsetgreg/repcue/pkg/conversation"
	"github.com/dotsetgreg/repcue/pkg/matcher"
	"github.com/dotsetgreg/repcue/pkg/preferences"
	"github.com/dotsetgreg/repcue/pkg/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixture struct {
	srv      *httptest.Server
	store    *store.MemoryStore
	registry *broadcast.Registry
}

func newFixture(t *testing.T, ready Pinger) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	reg := broadcast.NewRegistry(8)

	ix := catalog.NewIndex(catalog.StaticSource(catalog.DefaultEntries()), time.Hour)
	machine := conversation.NewMachine(preferences.NewExtractor(matcher.New(ix, nil, matcher.DefaultOptions())), nil)
	engine := conversation.NewEngine(machine, st, conversation.Options{MailboxSize: 8, Publisher: reg})

	cfg := config.DefaultConfig().Gateway
	srv := httptest.NewServer(NewServer(cfg, engine, reg, ready).Handler())
	t.Cleanup(func() {
		reg.Close()
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.Close(ctx); err != nil {
			t.Errorf("engine close: %v", err)
		}
	})
	return &fixture{srv: srv, store: st, registry: reg}
}

func (f *fixture) post(t *testing.T, body string) (*http.Response, messageResponse) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/v1/messages", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out messageResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) getJSON(t *testing.T, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		_ = json.NewDecoder(resp.Body).Decode(v)
	}
	return resp.StatusCode
}

func (f *fixture) delete(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.getJSON(t, "/health", nil))
	assert.Equal(t, http.StatusOK, f.getJSON(t, "/ready", nil))

	down := newFixture(t, pingerFunc(func(ctx context.Context) error { return errors.New("db locked") }))
	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, down.getJSON(t, "/ready", &body))
	assert.Equal(t, "db locked", body["error"])
}

func TestPostMessage_RunsTurnAndExposesPreferences(t *testing.T) {
	f := newFixture(t, nil)

	resp, out := f.post(t, `{"session_id":"class-6am","user_id":"u1","text":"push me hard, let's do deadlifts"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out.Reply, "focus for today")
	assert.Equal(t, conversation.PhaseFollowUpSent, out.Phase)
	assert.Empty(t, out.Error)

	var view pairView
	require.Equal(t, http.StatusOK, f.getJSON(t, "/v1/sessions/class-6am/users/u1/preferences", &view))
	assert.Equal(t, "high", view.Record.Intensity)
	assert.True(t, view.Record.NeedsFollowUp)
	require.Len(t, view.Record.IncludeExercises, 1)
	assert.Equal(t, "deadlift", view.Record.IncludeExercises[0].ID)

	var session struct {
		SessionID string     `json:"session_id"`
		Members   []pairView `json:"members"`
	}
	require.Equal(t, http.StatusOK, f.getJSON(t, "/v1/sessions/class-6am/preferences", &session))
	assert.Equal(t, "class-6am", session.SessionID)
	require.Len(t, session.Members, 1)
	assert.Equal(t, "u1", session.Members[0].UserID)
}

func TestPostMessage_PendingPromptIsVisible(t *testing.T) {
	f := newFixture(t, nil)

	_, out := f.post(t, `{"session_id":"s","user_id":"u","text":"let's do squats"}`)
	assert.Equal(t, conversation.PhaseDisambiguationPending, out.Phase)

	var view pairView
	require.Equal(t, http.StatusOK, f.getJSON(t, "/v1/sessions/s/users/u/preferences", &view))
	assert.Contains(t, view.PendingPrompt, "1. Back Squat")
}

func TestPostMessage_RejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `hello`},
		{"missing user", `{"session_id":"s","text":"hi"}`},
		{"blank session", `{"session_id":"  ","user_id":"u","text":"hi"}`},
		{"unknown field", `{"session_id":"s","user_id":"u","text":"hi","mood":"great"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.post(t, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestPostMessage_StoreOutageIsRetryable(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailWith = errors.New("disk full")

	resp, out := f.post(t, `{"session_id":"s","user_id":"u","text":"no burpees"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.True(t, out.Retryable)
	assert.NotEmpty(t, out.Reply)
	assert.Contains(t, out.Error, "disk full")
}

func TestPreferences_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusNotFound, f.getJSON(t, "/v1/sessions/s/users/nobody/preferences", nil))
}

func TestEndSession_DeletesStates(t *testing.T) {
	f := newFixture(t, nil)
	f.post(t, `{"session_id":"s","user_id":"a","text":"strength day, focus on legs"}`)
	f.post(t, `{"session_id":"s","user_id":"b","text":"no deadlifts"}`)
	f.post(t, `{"session_id":"other","user_id":"a","text":"no deadlifts"}`)

	status, body := f.delete(t, "/v1/sessions/s")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["states_deleted"])

	assert.Equal(t, http.StatusNotFound, f.getJSON(t, "/v1/sessions/s/users/a/preferences", nil))
	assert.Equal(t, http.StatusOK, f.getJSON(t, "/v1/sessions/other/users/a/preferences", nil))
}

func wsURL(base, path string) string {
	return "ws" + strings.TrimPrefix(base, "http") + path
}

func TestStream_DeliversChangesUntilSessionEnds(t *testing.T) {
	f := newFixture(t, nil)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(f.srv.URL, "/v1/sessions/s/stream"), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, 1, f.registry.Listeners("s"))

	_, out := f.post(t, `{"session_id":"s","user_id":"u1","text":"strength day, no deadlifts"}`)
	require.Empty(t, out.Error)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev broadcast.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "s", ev.SessionID)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "strength", ev.Record.SessionGoal)
	require.Len(t, ev.Record.AvoidExercises, 1)
	assert.Equal(t, "deadlift", ev.Record.AvoidExercises[0].ID)

	status, body := f.delete(t, "/v1/sessions/s")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["listeners_dropped"])

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestStream_RejectsForeignOrigin(t *testing.T) {
	st := store.NewMemoryStore()
	reg := broadcast.NewRegistry(4)
	defer reg.Close()
	cfg := config.DefaultConfig().Gateway
	cfg.AllowedOrigins = config.FlexibleStringSlice{"https://coach.example"}
	srv := httptest.NewServer(NewServer(cfg, nil, reg, listPinger(st)).Handler())
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/v1/sessions/s/stream"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, reg.Listeners("s"))
}

func listPinger(st *store.MemoryStore) Pinger {
	return pingerFunc(func(ctx context.Context) error {
		_, err := st.ListSession(ctx, "probe")
		return err
	})
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/v1/messages", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("Origin", "https://coach.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "repcue_pair_workers")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err       error
		status    int
		retryable bool
	}{
		{nil, http.StatusOK, false},
		{store.ErrNotFound, http.StatusNotFound, false},
		{errors.Join(errors.New("save"), store.ErrUnavailable), http.StatusServiceUnavailable, true},
		{conversation.ErrEngineClosed, http.StatusServiceUnavailable, true},
		{conversation.ErrPairBusy, http.StatusServiceUnavailable, true},
		{conversation.ErrInvalidState, http.StatusConflict, false},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, true},
		{errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		status, retryable := statusFor(tt.err)
		assert.Equal(t, tt.status, status, "%v", tt.err)
		assert.Equal(t, tt.retryable, retryable, "%v", tt.err)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://coach.example"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req), "no origin header")
	req.Header.Set("Origin", "https://COACH.example")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
	assert.True(t, originChecker([]string{"*"})(req))
}
