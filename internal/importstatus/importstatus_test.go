package importstatus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/catherinevee/vtagger/internal/cache"
	"github.com/catherinevee/vtagger/internal/umbrella"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, statusCalls *int, phase string) *Monitor {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/authentication/token/generate":
			json.NewEncoder(w).Encode(map[string]string{"Authorization": "tok", "apikey": "user:acct"})
		default:
			*statusCalls++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"phase":  phase,
				"status": "ok",
			})
		}
	}))
	t.Cleanup(upstream.Close)

	client := umbrella.New(upstream.URL, "", umbrella.Credentials{Username: "u", Password: "p"})
	return New(client, cache.NewMemory())
}

func TestPoll_TerminalPhaseIsCachedAfterFirstPoll(t *testing.T) {
	calls := 0
	m := newTestMonitor(t, &calls, "completed")

	rec, err := m.Poll(context.Background(), "k1", "upload-1", Context{SyncType: "week"})
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Phase)
	assert.Equal(t, 1, calls)

	rec2, err := m.Poll(context.Background(), "k1", "upload-1", Context{SyncType: "week"})
	require.NoError(t, err)
	assert.Equal(t, "completed", rec2.Phase)
	assert.Equal(t, 1, calls, "second poll should be served from cache")
}

func TestPoll_NonTerminalPhaseAlwaysHitsUpstream(t *testing.T) {
	calls := 0
	m := newTestMonitor(t, &calls, "processing")

	_, err := m.Poll(context.Background(), "k1", "upload-2", Context{})
	require.NoError(t, err)
	_, err = m.Poll(context.Background(), "k1", "upload-2", Context{})
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "non-terminal polls should never be cached")
}
