package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhub/eventhub/internal/handler"
	"github.com/eventhub/eventhub/internal/handler/dto"
	"github.com/eventhub/eventhub/internal/metrics"
	"github.com/eventhub/eventhub/internal/service"
	"github.com/eventhub/eventhub/internal/testutil"
)

func newTestRouter(t *testing.T) (http.Handler, *testutil.MemStore) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testutil.NewMemStore()
	svc := service.NewEventService(store, nil, metrics.NewNoop(), logger)

	base := handler.New(logger)
	r := chi.NewRouter()
	r.NotFound(base.NotFound)
	r.MethodNotAllowed(base.MethodNotAllowed)
	r.Mount("/events", handler.NewEventHandler(svc, logger).Routes())
	return r, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestCreateEvent(t *testing.T) {
	future := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:       "valid",
			body:       fmt.Sprintf(`{"title":"Go Meetup","datetime":%q,"location":"Berlin","capacity":50}`, future),
			wantStatus: http.StatusCreated,
		},
		{
			name:        "missing title",
			body:        fmt.Sprintf(`{"datetime":%q,"location":"Berlin","capacity":50}`, future),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "missing required fields",
		},
		{
			name:        "missing capacity",
			body:        fmt.Sprintf(`{"title":"Go Meetup","datetime":%q,"location":"Berlin"}`, future),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "missing required fields",
		},
		{
			name:        "capacity too large",
			body:        fmt.Sprintf(`{"title":"Go Meetup","datetime":%q,"location":"Berlin","capacity":1001}`, future),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid capacity",
		},
		{
			name:        "fractional capacity",
			body:        fmt.Sprintf(`{"title":"Go Meetup","datetime":%q,"location":"Berlin","capacity":3.5}`, future),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid capacity",
		},
		{
			name:        "bad date",
			body:        `{"title":"Go Meetup","datetime":"next tuesday","location":"Berlin","capacity":5}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid date format",
		},
		{
			name:        "malformed json",
			body:        `{"title":`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid request body",
		},
		{
			name:        "capacity as string",
			body:        fmt.Sprintf(`{"title":"Go Meetup","datetime":%q,"location":"Berlin","capacity":"50"}`, future),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid capacity",
		},
		{
			name:        "capacity as boolean",
			body:        fmt.Sprintf(`{"title":"Go Meetup","datetime":%q,"location":"Berlin","capacity":true}`, future),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid capacity",
		},
		{
			name:        "only capacity as string",
			body:        `{"capacity":"50"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "missing required fields",
		},
		{
			name:        "null capacity",
			body:        fmt.Sprintf(`{"title":"Go Meetup","datetime":%q,"location":"Berlin","capacity":null}`, future),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "missing required fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t)

			rec := do(t, router, http.MethodPost, "/events", tt.body)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantStatus == http.StatusCreated {
				resp := decode[dto.CreateEventResponse](t, rec)
				assert.Positive(t, resp.EventID)
				return
			}
			resp := decode[dto.MessageResponse](t, rec)
			assert.Equal(t, tt.wantMessage, resp.Message)
		})
	}
}

func TestGetEvent(t *testing.T) {
	router, store := newTestRouter(t)

	when := time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)
	eventID := store.AddEvent("Launch", when, "Paris", 10)
	userID := store.AddUser("Ada", "ada@example.com")

	rec := do(t, router, http.MethodPost, fmt.Sprintf("/events/%d/register", eventID), fmt.Sprintf(`{"userId":%d}`, userID))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/events/%d", eventID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	event := decode[dto.EventResponse](t, rec)
	assert.Equal(t, eventID, event.ID)
	assert.Equal(t, "Launch", event.Title)
	assert.Equal(t, "2030-05-01T18:00:00Z", event.Datetime)
	assert.Equal(t, "Paris", event.Location)
	assert.Equal(t, 10, event.Capacity)
	assert.Equal(t, []dto.UserResponse{{ID: userID, Name: "Ada", Email: "ada@example.com"}}, event.Registrations)
}

func TestGetEvent_EmptyRegistrationsEncodeAsArray(t *testing.T) {
	router, store := newTestRouter(t)
	eventID := store.AddEvent("Quiet", time.Now().Add(time.Hour), "Oslo", 3)

	rec := do(t, router, http.MethodGet, fmt.Sprintf("/events/%d", eventID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"registrations":[]`)
}

func TestGetEvent_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/events/999", "/events/abc", "/events/abc/stats"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, path, "")
			require.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "event not found", decode[dto.MessageResponse](t, rec).Message)
		})
	}
}

func TestRegister(t *testing.T) {
	router, store := newTestRouter(t)

	eventID := store.AddEvent("Workshop", time.Now().Add(24*time.Hour), "Rome", 1)
	pastID := store.AddEvent("Yesterday", time.Now().Add(-24*time.Hour), "Rome", 10)
	alice := store.AddUser("Alice", "alice@example.com")
	bob := store.AddUser("Bob", "bob@example.com")

	path := func(id int64) string { return fmt.Sprintf("/events/%d/register", id) }
	body := func(id int64) string { return fmt.Sprintf(`{"userId":%d}`, id) }

	tests := []struct {
		name        string
		path        string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{"success", path(eventID), body(alice), http.StatusCreated, "registration successful"},
		{"duplicate", path(eventID), body(alice), http.StatusConflict, "already registered"},
		{"full", path(eventID), body(bob), http.StatusBadRequest, "event is full"},
		{"missing user id", path(eventID), `{}`, http.StatusBadRequest, "missing userId"},
		{"empty body", path(eventID), "", http.StatusBadRequest, "missing userId"},
		{"malformed body", path(eventID), `{"userId":`, http.StatusBadRequest, "invalid request body"},
		{"boolean user id", path(eventID), `{"userId":true}`, http.StatusBadRequest, "missing userId"},
		{"fractional user id", path(eventID), `{"userId":1.5}`, http.StatusBadRequest, "missing userId"},
		{"non-numeric user id", path(eventID), `{"userId":"alice"}`, http.StatusBadRequest, "missing userId"},
		{"unknown event", path(9999), body(alice), http.StatusNotFound, "event not found"},
		{"past event", path(pastID), body(bob), http.StatusBadRequest, "cannot register for past events"},
		{"non-numeric event", "/events/abc/register", body(alice), http.StatusNotFound, "event not found"},
	}

	// Subtests share state and run in declaration order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantMessage, decode[dto.MessageResponse](t, rec).Message)
		})
	}

	assert.Equal(t, 1, store.RegistrationCount(eventID))
}

func TestRegister_UserIDAsString(t *testing.T) {
	router, store := newTestRouter(t)
	eventID := store.AddEvent("Workshop", time.Now().Add(24*time.Hour), "Rome", 5)
	userID := store.AddUser("Dana", "dana@example.com")
	path := fmt.Sprintf("/events/%d/register", eventID)
	body := fmt.Sprintf(`{"userId":"%d"}`, userID)

	rec := do(t, router, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, store.RegistrationCount(eventID))

	rec = do(t, router, http.MethodDelete, path, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, store.RegistrationCount(eventID))
}

func TestRegister_UnknownUser(t *testing.T) {
	router, store := newTestRouter(t)
	eventID := store.AddEvent("Workshop", time.Now().Add(24*time.Hour), "Rome", 5)

	rec := do(t, router, http.MethodPost, fmt.Sprintf("/events/%d/register", eventID), `{"userId":42}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", decode[dto.MessageResponse](t, rec).Message)
}

func TestCancel(t *testing.T) {
	router, store := newTestRouter(t)

	eventID := store.AddEvent("Talk", time.Now().Add(24*time.Hour), "Madrid", 5)
	userID := store.AddUser("Carol", "carol@example.com")
	path := fmt.Sprintf("/events/%d/register", eventID)
	body := fmt.Sprintf(`{"userId":%d}`, userID)

	rec := do(t, router, http.MethodDelete, path, body)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not registered", decode[dto.MessageResponse](t, rec).Message)

	rec = do(t, router, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodDelete, path, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "registration cancelled", decode[dto.MessageResponse](t, rec).Message)
	assert.Zero(t, store.RegistrationCount(eventID))

	rec = do(t, router, http.MethodDelete, path, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing userId", decode[dto.MessageResponse](t, rec).Message)
}

func TestListUpcoming(t *testing.T) {
	router, store := newTestRouter(t)

	same := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	store.AddEvent("Past", time.Now().Add(-time.Hour), "Anywhere", 5)
	store.AddEvent("Later", time.Now().Add(96*time.Hour), "Amsterdam", 5)
	store.AddEvent("Zurich", same, "Zurich", 5)
	store.AddEvent("Athens", same, "Athens", 5)
	store.AddEvent("Soon", time.Now().Add(time.Hour), "Lisbon", 5)

	rec := do(t, router, http.MethodGet, "/events/upcoming", "")
	require.Equal(t, http.StatusOK, rec.Code)

	events := decode[[]dto.EventResponse](t, rec)
	titles := make([]string, len(events))
	for i, e := range events {
		titles[i] = e.Title
	}
	assert.Equal(t, []string{"Soon", "Athens", "Zurich", "Later"}, titles)
}

func TestListUpcoming_Empty(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/events/upcoming", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStats(t *testing.T) {
	router, store := newTestRouter(t)

	eventID := store.AddEvent("Summit", time.Now().Add(24*time.Hour), "Vienna", 3)
	for i := 0; i < 2; i++ {
		userID := store.AddUser(fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i))
		rec := do(t, router, http.MethodPost, fmt.Sprintf("/events/%d/register", eventID), fmt.Sprintf(`{"userId":%d}`, userID))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, router, http.MethodGet, fmt.Sprintf("/events/%d/stats", eventID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalRegistrations":2,"remainingCapacity":1,"percentUsed":67}`, rec.Body.String())
}

func TestInternalErrorIsOpaque(t *testing.T) {
	router, store := newTestRouter(t)
	store.Err = errors.New("connection reset by peer")

	rec := do(t, router, http.MethodGet, "/events/upcoming", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode[dto.MessageResponse](t, rec)
	assert.Equal(t, "internal server error", resp.Message)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/events/upcoming", bytes.NewReader(nil))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
