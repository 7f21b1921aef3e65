// Package umbrella is the HTTP client for the upstream cost-platform
// API: authentication, account listing, paginated asset streaming, the
// presigned-upload handshake, and import-status polling.
package umbrella

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
	"github.com/catherinevee/vtagger/internal/logging"
)

const (
	authTimeout       = 30 * time.Second
	accountTimeout    = 30 * time.Second
	assetPageTimeout  = 10 * time.Minute
	uploadTimeout     = 5 * time.Minute
	importPollTimeout = 10 * time.Second

	tokenLifetime  = 1 * time.Hour
	renewalMargin  = 5 * time.Minute
)

// Credentials is the username/password pair exchanged for a token.
type Credentials struct {
	Username string
	Password string
}

// Client talks to the upstream governance-tags API.
type Client struct {
	baseURL    string
	brokerURL  string
	creds      Credentials
	httpClient *http.Client
	log        zerolog.Logger

	mu        sync.Mutex
	jwtToken  string
	apikey    string
	userKey   string
	expiresAt time.Time
}

// New returns a Client pointed at baseURL, using brokerURL for the
// token-broker auth path.
func New(baseURL, brokerURL string, creds Credentials) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		brokerURL:  brokerURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: authTimeout},
		log:        logging.Component("umbrella"),
	}
}

// authResponse is the shape both auth paths return.
type authResponse struct {
	Authorization string `json:"Authorization"`
	Apikey        string `json:"apikey"`
}

// Authenticate attempts the token-broker path first, falling back to
// Basic-auth token exchange. Both failing is a fatal CredentialError.
func (c *Client) Authenticate(ctx context.Context) error {
	if resp, err := c.authViaBroker(ctx); err == nil {
		c.storeAuth(resp)
		return nil
	}

	resp, err := c.authViaBasic(ctx)
	if err != nil {
		return vtagerrors.NewCredential("both authentication mechanisms rejected").WithCause(err)
	}
	c.storeAuth(resp)
	return nil
}

func (c *Client) authViaBroker(ctx context.Context) (*authResponse, error) {
	if c.brokerURL == "" {
		return nil, fmt.Errorf("no broker url configured")
	}
	body, _ := json.Marshal(map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.brokerURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doAuthRequest(req)
}

func (c *Client) authViaBasic(ctx context.Context) (*authResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
	})

	url := c.baseURL + "/v1/authentication/token/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	basic := base64.StdEncoding.EncodeToString([]byte(c.creds.Username + ":" + c.creds.Password))
	req.Header.Set("Authorization", "Basic "+basic)

	return c.doAuthRequest(req)
}

func (c *Client) doAuthRequest(req *http.Request) (*authResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("auth failed: status %d: %s", resp.StatusCode, string(data))
	}

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Authorization == "" || out.Apikey == "" {
		return nil, fmt.Errorf("auth response missing Authorization or apikey")
	}
	return &out, nil
}

func (c *Client) storeAuth(resp *authResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.jwtToken = resp.Authorization
	c.apikey = resp.Apikey
	if idx := strings.IndexByte(resp.Apikey, ':'); idx >= 0 {
		c.userKey = resp.Apikey[:idx]
	} else {
		c.userKey = resp.Apikey
	}
	c.expiresAt = tokenExpiry(resp.Authorization)
}

// tokenExpiry reads the exp claim off the JWT without validating its
// signature (the upstream, not this client, is the signer of record);
// falls back to the assumed 1-hour lifetime when exp is absent or the
// token cannot be parsed as a JWT at all.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return time.Now().Add(tokenLifetime)
	}
	if expVal, ok := claims["exp"]; ok {
		if expFloat, ok := expVal.(float64); ok {
			return time.Unix(int64(expFloat), 0)
		}
	}
	return time.Now().Add(tokenLifetime)
}

// needsRenewal reports whether the current token is within the
// renewal margin of expiry, or there is no token at all.
func (c *Client) needsRenewal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jwtToken == "" {
		return true
	}
	return time.Now().Add(renewalMargin).After(c.expiresAt)
}

// ensureAuthenticated authenticates if there is no token or it is near
// expiry.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if c.needsRenewal() {
		return c.Authenticate(ctx)
	}
	return nil
}

// accountKey is empty for account-listing calls, otherwise the
// caller's specific account key.
func (c *Client) headers(accountKey string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	apikey := fmt.Sprintf("%s:-1:-1", c.userKey)
	if accountKey != "" {
		apikey = fmt.Sprintf("%s:%s:0", c.userKey, accountKey)
	}
	return map[string]string{
		"Authorization": c.jwtToken,
		"apikey":        apikey,
	}
}

// do executes req with auth headers, retrying exactly once on 401 after
// re-authenticating. A second 401 is fatal (UpstreamFatal).
func (c *Client) do(ctx context.Context, method, url string, body io.Reader, accountKey string, timeout time.Duration) (*http.Response, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = io.ReadAll(body)
	}

	client := &http.Client{Timeout: timeout}

	attempt := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		for k, v := range c.headers(accountKey) {
			req.Header.Set(k, v)
		}
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/json")
		}
		return client.Do(req)
	}

	resp, err := attempt()
	if err != nil {
		return nil, vtagerrors.NewUpstreamTransient("request failed").WithCause(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.log.Warn().Str("url", url).Msg("401 response, re-authenticating and retrying once")
		c.mu.Lock()
		c.jwtToken = ""
		c.mu.Unlock()

		if err := c.Authenticate(ctx); err != nil {
			return nil, vtagerrors.NewUpstreamFatal("re-authentication after 401 failed").WithCause(err)
		}

		resp, err = attempt()
		if err != nil {
			return nil, vtagerrors.NewUpstreamTransient("retry after re-auth failed").WithCause(err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			return nil, vtagerrors.NewUpstreamFatal("persistent 401 after re-authentication")
		}
	}

	return resp, nil
}
