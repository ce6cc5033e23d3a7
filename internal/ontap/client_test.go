package ontap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a Client pointed at a test server.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		Username: "admin",
		Password: "secret",
		BaseURL:  srv.URL,
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, body)
}

func TestClient_Ping(t *testing.T) {
	t.Parallel()

	var gotAuth bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cluster", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "admin" && pass == "secret"
		writeJSON(t, w, http.StatusOK, `{"name":"cluster1"}`)
	}))

	err := client.Ping(context.Background())

	require.NoError(t, err)
	assert.True(t, gotAuth, "request should carry basic auth credentials")
}

func TestClient_LookupVolume(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/volumes", r.URL.Path)
		assert.Equal(t, "vol_app01", r.URL.Query().Get("name"))
		writeJSON(t, w, http.StatusOK, `{
			"records": [{
				"uuid": "vol-uuid-1",
				"name": "vol_app01",
				"size": 107374182400,
				"svm": {"name": "svm1"},
				"aggregates": [{"name": "aggr1_node01"}]
			}]
		}`)
	}))

	info, err := client.LookupVolume(context.Background(), "vol_app01")

	require.NoError(t, err)
	assert.Equal(t, "vol_app01", info.Name)
	assert.Equal(t, "vol-uuid-1", info.UUID)
	assert.Equal(t, "svm1", info.SVM)
	assert.Equal(t, "aggr1_node01", info.Aggregate)
	assert.Equal(t, int64(107374182400), info.SizeBytes)
}

func TestClient_LookupVolume_NotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"records": []}`)
	}))

	info, err := client.LookupVolume(context.Background(), "vol_missing")

	require.Error(t, err)
	assert.Nil(t, info)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
	assert.ErrorContains(t, err, "vol_missing")
}

func TestClient_SubmitMove(t *testing.T) {
	t.Parallel()

	var movePayload map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/storage/volumes":
			writeJSON(t, w, http.StatusOK, `{
				"records": [{"uuid": "vol-uuid-1", "name": "vol_app01", "svm": {"name": "svm1"}}]
			}`)
		case r.URL.Path == "/storage/aggregates":
			assert.Equal(t, "aggr2_node02", r.URL.Query().Get("name"))
			writeJSON(t, w, http.StatusOK, `{
				"records": [{"uuid": "aggr-uuid-2", "name": "aggr2_node02"}]
			}`)
		case r.URL.Path == "/storage/volume-moves" && r.Method == http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&movePayload))
			writeJSON(t, w, http.StatusAccepted, `{"uuid": "move-uuid-1"}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	err := client.SubmitMove(context.Background(), "vol_app01", Destination{Aggregate: "aggr2_node02"})

	require.NoError(t, err)
	require.NotNil(t, movePayload)
	assert.Equal(t, map[string]interface{}{"uuid": "vol-uuid-1"}, movePayload["volume"])
	assert.Equal(t, map[string]interface{}{"uuid": "aggr-uuid-2"}, movePayload["destination_aggregate"])
	assert.Equal(t, float64(30), movePayload["cutover_window"])
	assert.Equal(t, "retry", movePayload["cutover_action"])
}

func TestClient_SubmitMove_NodeDestinationPicksRoomiestAggregate(t *testing.T) {
	t.Parallel()

	var movePayload map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/storage/volumes":
			writeJSON(t, w, http.StatusOK, `{"records": [{"uuid": "vol-uuid-1", "name": "vol1"}]}`)
		case "/storage/aggregates":
			assert.Equal(t, "node02", r.URL.Query().Get("node.name"))
			writeJSON(t, w, http.StatusOK, `{
				"records": [
					{"uuid": "aggr-small", "name": "aggr1_node02", "space": {"block_storage": {"available": 1000}}},
					{"uuid": "aggr-big", "name": "aggr2_node02", "space": {"block_storage": {"available": 9000}}},
					{"uuid": "aggr-mid", "name": "aggr3_node02", "space": {"block_storage": {"available": 5000}}}
				]
			}`)
		case "/storage/volume-moves":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&movePayload))
			writeJSON(t, w, http.StatusAccepted, `{"uuid": "move-uuid-1"}`)
		}
	}))

	err := client.SubmitMove(context.Background(), "vol1", Destination{Node: "node02"})

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"uuid": "aggr-big"}, movePayload["destination_aggregate"])
}

func TestClient_SubmitMove_NoMatchingAggregate(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/storage/volumes":
			writeJSON(t, w, http.StatusOK, `{"records": [{"uuid": "vol-uuid-1", "name": "vol1"}]}`)
		case "/storage/aggregates":
			writeJSON(t, w, http.StatusOK, `{"records": []}`)
		}
	}))

	err := client.SubmitMove(context.Background(), "vol1", Destination{Aggregate: "aggr_gone"})

	require.Error(t, err)
	assert.True(t, IsInvalidDestination(err))
	assert.False(t, IsTransient(err))
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		status        int
		body          string
		wantKind      ErrorKind
		wantTransient bool
		wantMessage   string
	}{
		{
			name:          "conflict_is_busy",
			status:        http.StatusConflict,
			body:          `{"error": {"message": "another move is in progress", "code": "13001"}}`,
			wantKind:      ErrKindBusy,
			wantTransient: true,
			wantMessage:   "another move is in progress",
		},
		{
			name:          "too_many_requests_is_busy",
			status:        http.StatusTooManyRequests,
			body:          `{}`,
			wantKind:      ErrKindBusy,
			wantTransient: true,
		},
		{
			name:          "not_found",
			status:        http.StatusNotFound,
			body:          `{"error": {"message": "entry does not exist"}}`,
			wantKind:      ErrKindNotFound,
			wantTransient: false,
			wantMessage:   "entry does not exist",
		},
		{
			name:          "unprocessable_is_invalid_destination",
			status:        422,
			body:          `{"error": {"message": "aggregate not eligible"}}`,
			wantKind:      ErrKindInvalidDestination,
			wantTransient: false,
			wantMessage:   "aggregate not eligible",
		},
		{
			name:          "bad_request_is_invalid_destination",
			status:        http.StatusBadRequest,
			body:          `{}`,
			wantKind:      ErrKindInvalidDestination,
			wantTransient: false,
		},
		{
			name:          "server_error_is_transient",
			status:        http.StatusInternalServerError,
			body:          `{}`,
			wantKind:      ErrKindTransient,
			wantTransient: true,
		},
		{
			name:          "bad_gateway_is_transient",
			status:        http.StatusBadGateway,
			body:          "not even json",
			wantKind:      ErrKindTransient,
			wantTransient: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tc.status, tc.body)
			}))

			err := client.Ping(context.Background())

			require.Error(t, err)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.wantKind, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.wantTransient, IsTransient(err))
			if tc.wantMessage != "" {
				assert.Contains(t, apiErr.Message, tc.wantMessage)
			}
		})
	}
}

func TestClient_PollMove(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/volume-moves", r.URL.Path)
		assert.Equal(t, "vol1", r.URL.Query().Get("volume.name"))
		writeJSON(t, w, http.StatusOK, `{
			"records": [{
				"uuid": "move-uuid-1",
				"volume": {"name": "vol1"},
				"state": "replicating",
				"percent_complete": 42,
				"messages": [{"message": "transferring data"}]
			}]
		}`)
	}))

	status, err := client.PollMove(context.Background(), "vol1")

	require.NoError(t, err)
	assert.Equal(t, "move-uuid-1", status.UUID)
	assert.Equal(t, "vol1", status.Volume)
	assert.Equal(t, MoveStateReplicating, status.State)
	assert.Equal(t, 42, status.PercentComplete)
	assert.Equal(t, "transferring data", status.Message)
	assert.False(t, status.State.Terminal())
}

func TestClient_PollMove_NoMove(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"records": []}`)
	}))

	status, err := client.PollMove(context.Background(), "vol1")

	require.Error(t, err)
	assert.Nil(t, status)
	assert.True(t, IsNotFound(err))
}

func TestClient_PollMove_PrefersKnownUUID(t *testing.T) {
	t.Parallel()

	// Two historical moves for the same volume; only the one whose UUID
	// came back from SubmitMove should be reported.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/storage/volumes":
			writeJSON(t, w, http.StatusOK, `{"records": [{"uuid": "vol-uuid-1", "name": "vol1"}]}`)
		case "/storage/aggregates":
			writeJSON(t, w, http.StatusOK, `{"records": [{"uuid": "aggr-uuid-1", "name": "aggr1"}]}`)
		case "/storage/volume-moves":
			if r.Method == http.MethodPost {
				writeJSON(t, w, http.StatusAccepted, `{"uuid": "move-new"}`)
				return
			}
			writeJSON(t, w, http.StatusOK, `{
				"records": [
					{"uuid": "move-old", "volume": {"name": "vol1"}, "state": "failed"},
					{"uuid": "move-new", "volume": {"name": "vol1"}, "state": "queued", "percent_complete": 0}
				]
			}`)
		}
	}))

	require.NoError(t, client.SubmitMove(context.Background(), "vol1", Destination{Aggregate: "aggr1"}))

	status, err := client.PollMove(context.Background(), "vol1")

	require.NoError(t, err)
	assert.Equal(t, "move-new", status.UUID)
	assert.Equal(t, MoveStateQueued, status.State)
}

func TestClient_FindActiveMove(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		records    string
		wantActive bool
	}{
		{
			name:       "replicating_is_active",
			records:    `[{"uuid": "m1", "volume": {"name": "vol1"}, "state": "replicating", "percent_complete": 10}]`,
			wantActive: true,
		},
		{
			name:       "terminal_is_not_active",
			records:    `[{"uuid": "m1", "volume": {"name": "vol1"}, "state": "success", "percent_complete": 100}]`,
			wantActive: false,
		},
		{
			name:       "no_move",
			records:    `[]`,
			wantActive: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, `{"records": `+tc.records+`}`)
			}))

			status, err := client.FindActiveMove(context.Background(), "vol1")

			require.NoError(t, err)
			if tc.wantActive {
				assert.NotNil(t, status)
			} else {
				assert.Nil(t, status)
			}
		})
	}
}

func TestClient_AbortMove(t *testing.T) {
	t.Parallel()

	var patched string
	var patchBody map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			patched = r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patchBody))
			writeJSON(t, w, http.StatusOK, `{}`)
			return
		}
		writeJSON(t, w, http.StatusOK, `{
			"records": [{"uuid": "move-uuid-1", "volume": {"name": "vol1"}, "state": "replicating"}]
		}`)
	}))

	err := client.AbortMove(context.Background(), "vol1")

	require.NoError(t, err)
	assert.Equal(t, "/storage/volume-moves/move-uuid-1", patched)
	assert.Equal(t, map[string]string{"state": "aborted"}, patchBody)
}

func TestClient_AbortMove_TerminalIsNoop(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEqual(t, http.MethodPatch, r.Method, "terminal move must not be patched")
		writeJSON(t, w, http.StatusOK, `{
			"records": [{"uuid": "move-uuid-1", "volume": {"name": "vol1"}, "state": "success"}]
		}`)
	}))

	err := client.AbortMove(context.Background(), "vol1")

	require.NoError(t, err)
}

func TestDestination(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		dest          Destination
		wantSpecified bool
		wantString    string
	}{
		{"aggregate_only", Destination{Aggregate: "aggr2"}, true, "aggregate aggr2"},
		{"node_only", Destination{Node: "node02"}, true, "node node02"},
		{"aggregate_wins", Destination{Node: "node02", Aggregate: "aggr2"}, true, "aggregate aggr2"},
		{"empty", Destination{}, false, "unspecified"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.wantSpecified, tc.dest.Specified())
			assert.Equal(t, tc.wantString, tc.dest.String())
		})
	}
}

func TestIsTransient_PlainErrors(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", &APIError{Kind: ErrKindBusy})))
	assert.False(t, IsTransient(fmt.Errorf("wrapped: %w", &APIError{Kind: ErrKindNotFound})))
}
