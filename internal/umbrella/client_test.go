package umbrella

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_BrokerPathSucceeds(t *testing.T) {
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authResponse{Authorization: "jwt-token", Apikey: "user1:acct1"})
	}))
	defer broker.Close()

	c := New("https://upstream.example", broker.URL, Credentials{Username: "u", Password: "p"})
	err := c.Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "jwt-token", c.jwtToken)
	assert.Equal(t, "user1", c.userKey)
}

func TestAuthenticate_FallsBackToBasicWhenBrokerFails(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/authentication/token/generate" {
			json.NewEncoder(w).Encode(authResponse{Authorization: "basic-token", Apikey: "user2:acct2"})
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer upstream.Close()

	brokerDown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
	}))
	defer brokerDown.Close()

	c := New(upstream.URL, brokerDown.URL, Credentials{Username: "u", Password: "p"})
	err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "basic-token", c.jwtToken)
}

func TestAuthenticate_BothMechanismsFailingIsFatal(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	c := New(down.URL, down.URL, Credentials{Username: "u", Password: "p"})
	err := c.Authenticate(context.Background())
	assert.Error(t, err)
}

func TestDo_RetriesOnceAfter401ThenSucceeds(t *testing.T) {
	authCalls := 0
	requestCalls := 0

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/authentication/token/generate":
			authCalls++
			json.NewEncoder(w).Encode(authResponse{Authorization: "token", Apikey: "user:acct"})
		case "/v1/protected":
			requestCalls++
			if requestCalls == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer upstream.Close()

	c := New(upstream.URL, "", Credentials{Username: "u", Password: "p"})
	resp, err := c.do(context.Background(), http.MethodGet, upstream.URL+"/v1/protected", nil, "", 0)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, requestCalls)
	assert.Equal(t, 2, authCalls) // initial auth + re-auth after 401
}

func TestDo_PersistentUnauthorizedIsFatal(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/authentication/token/generate":
			json.NewEncoder(w).Encode(authResponse{Authorization: "token", Apikey: "user:acct"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer upstream.Close()

	c := New(upstream.URL, "", Credentials{Username: "u", Password: "p"})
	_, err := c.do(context.Background(), http.MethodGet, upstream.URL+"/v1/protected", nil, "", 0)
	assert.Error(t, err)
}

func TestHeaders_EmptyAccountKeyMeansAccountListing(t *testing.T) {
	c := &Client{jwtToken: "tok", userKey: "user"}
	h := c.headers("")
	assert.Equal(t, "user:-1:-1", h["apikey"])

	h = c.headers("acct-5")
	assert.Equal(t, "user:acct-5:0", h["apikey"])
}
