package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loomtrack-backend/internal/model"
)

func TestClient_FetchSettings(t *testing.T) {
	t.Run("absent settings yield nil without error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		c := NewClient(server.URL, "secret", time.Second)
		s, err := c.FetchSettings(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("maps the remote row and sends the credential", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]any{
				"machine_count":   24,
				"alert_threshold": 60.5,
				"remote_endpoint": "https://records.example.com",
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, "secret", time.Second)
		s, err := c.FetchSettings(context.Background())
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "Bearer secret", gotAuth)
		assert.Equal(t, 24, s.MachineCount)
		assert.Equal(t, 60.5, s.AlertThreshold)
		assert.Equal(t, "https://records.example.com", s.RemoteEndpoint)
	})
}

func TestClient_FetchAllRecords_SkipsInvalidRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/records", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "r1", "date": "2024-01-01", "shift": "Day", "machine_no": "3", "stops": 2, "weft_meter": 120.5, "total_time": "08:00:00", "run_time": "07:30:00"},
			{"id": "", "shift": "Day", "total_time": "08:00:00", "run_time": "08:00:00"},           // no id
			{"id": "r3", "shift": "Graveyard", "total_time": "08:00:00", "run_time": "08:00:00"},  // bad shift
			{"id": "r4", "shift": "Night", "total_time": "not a span", "run_time": "08:00:00"},    // bad span
			{"id": "r5", "date": "2024-01-02", "shift": "Night", "machine_no": "4", "total_time": "08:00:00", "run_time": "06:00:00"},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", time.Second)
	records, err := c.FetchAllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].ID)
	assert.Equal(t, model.ShiftDay, records[0].Shift)
	assert.Equal(t, 120.5, records[0].WeftMeter)
	assert.Equal(t, "r5", records[1].ID)
}

func TestClient_UpsertRecord(t *testing.T) {
	var gotPath string
	var gotRow recordRow
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotRow))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", time.Second)
	err := c.UpsertRecord(context.Background(), model.Record{
		ID: "r1", Date: "2024-01-01", Shift: model.ShiftDay, MachineNo: "3",
		Stops: 2, WeftMeter: 120.5, Total: "08:00:00", Run: "07:30:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/records/r1", gotPath)
	assert.Equal(t, "07:30:00", gotRow.RunTime)
	assert.Equal(t, "Day", gotRow.Shift)
}

func TestClient_ErrorClassification(t *testing.T) {
	testCases := []struct {
		name          string
		status        int
		wantRejection bool
	}{
		{name: "unprocessable payload is a rejection", status: http.StatusUnprocessableEntity, wantRejection: true},
		{name: "conflict is a rejection", status: http.StatusConflict, wantRejection: true},
		{name: "server error is retryable", status: http.StatusInternalServerError, wantRejection: false},
		{name: "request timeout is retryable", status: http.StatusRequestTimeout, wantRejection: false},
		{name: "rate limit is retryable", status: http.StatusTooManyRequests, wantRejection: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer server.Close()

			c := NewClient(server.URL, "", time.Second)
			err := c.UpsertRecord(context.Background(), model.Record{ID: "r1"})
			require.Error(t, err)
			assert.Equal(t, tc.wantRejection, IsRejection(err))
		})
	}
}

func TestClient_DeleteAllRecords(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", time.Second)
	require.NoError(t, c.DeleteAllRecords(context.Background()))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/v1/records", gotPath)
}

func TestClient_Subscribe(t *testing.T) {
	events := make(chan Event, 8)
	streamDone := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events", r.URL.Path)
		flusher := w.(http.Flusher)
		enc := json.NewEncoder(w)

		enc.Encode(eventRow{Kind: "insert", Record: &recordRow{
			ID: "r1", Date: "2024-01-01", Shift: "Day", MachineNo: "3",
			TotalTime: "08:00:00", RunTime: "07:00:00",
		}})
		enc.Encode(eventRow{Kind: "bogus"}) // malformed, must be skipped
		enc.Encode(eventRow{Kind: "delete", ID: "r2"})
		flusher.Flush()
		<-streamDone
	}))
	defer server.Close()
	defer close(streamDone)

	errs := make(chan error, 1)
	c := NewClient(server.URL, "", time.Second)
	unsubscribe, err := c.Subscribe(
		func(ev Event) { events <- ev },
		func(err error) { errs <- err },
	)
	require.NoError(t, err)
	defer unsubscribe()

	ev := waitEvent(t, events)
	assert.Equal(t, EventInsert, ev.Kind)
	require.NotNil(t, ev.Record)
	assert.Equal(t, "r1", ev.Record.ID)

	ev = waitEvent(t, events)
	assert.Equal(t, EventDelete, ev.Kind)
	assert.Equal(t, "r2", ev.RecordID)

	// Unsubscribing tears the stream down without reporting an error.
	unsubscribe()
	select {
	case err := <-errs:
		t.Fatalf("unexpected stream error after unsubscribe: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClient_Subscribe_ReportsDroppedStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Acknowledge and immediately close the stream.
	}))

	errs := make(chan error, 1)
	c := NewClient(server.URL, "", time.Second)
	unsubscribe, err := c.Subscribe(func(Event) {}, func(err error) { errs <- err })
	require.NoError(t, err)
	defer unsubscribe()

	server.Close()
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream drop to be reported")
	}
}

func TestClient_Subscribe_HungHandshakeResolves(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Accept the request but never write response headers.
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(server.URL, "", 300*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := c.Subscribe(func(Event) {}, func(error) {})
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("subscription handshake never resolved against an unresponsive remote")
	}
}

func TestClient_Subscribe_RejectedHandshake(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credential", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(server.URL, "wrong", time.Second)
	_, err := c.Subscribe(func(Event) {}, func(error) {})
	assert.Error(t, err)
}

func waitEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
