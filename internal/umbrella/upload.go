package umbrella

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
)

// UploadMode is passed through unchanged to the upstream import call.
type UploadMode string

const (
	ModeUpsert     UploadMode = "upsert"
	ModeReplaceAll UploadMode = "replaceAll"
)

// UploadHandle identifies an in-flight or completed import.
type UploadHandle struct {
	UploadID string
	URL      string
}

// generateUploadURLResponse tolerates any of the documented key
// spellings for both the URL and the identifier.
type generateUploadURLResponse struct {
	URL          string `json:"url"`
	UploadURL    string `json:"uploadUrl"`
	PresignedURL string `json:"presignedUrl"`
	UploadID     string `json:"uploadId"`
	ID           string `json:"id"`
}

func (r generateUploadURLResponse) resolvedURL() string {
	for _, v := range []string{r.URL, r.UploadURL, r.PresignedURL} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r generateUploadURLResponse) resolvedID() string {
	if r.UploadID != "" {
		return r.UploadID
	}
	return r.ID
}

// GenerateUploadURL requests a presigned upload target for the given
// payer account key.
func (c *Client) GenerateUploadURL(ctx context.Context, accountKey string, compressed bool, mode UploadMode) (*UploadHandle, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"compressed": compressed,
		"mode":       string(mode),
	})

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/governance-tags/resources/import/generate-upload-url",
		bytes.NewReader(body), accountKey, uploadTimeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return nil, vtagerrors.NewUpstreamFatal("generate-upload-url returned non-2xx").
			WithDetail("status", resp.StatusCode).WithDetail("body", string(data))
	}

	var out generateUploadURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, vtagerrors.NewUpstreamFatal("malformed generate-upload-url response").WithCause(err)
	}

	handle := &UploadHandle{URL: out.resolvedURL(), UploadID: out.resolvedID()}
	if handle.URL == "" || handle.UploadID == "" {
		return nil, vtagerrors.NewUpstreamFatal("generate-upload-url response missing url or id")
	}
	return handle, nil
}

// PutFile PUTs data to the presigned URL, setting Content-Encoding:
// gzip when compressed is true.
func (c *Client) PutFile(ctx context.Context, presignedURL string, data []byte, compressed bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presignedURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/csv")
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}

	client := &http.Client{Timeout: uploadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return vtagerrors.NewUpstreamTransient("presigned PUT failed").WithCause(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return vtagerrors.NewUpstreamTransient("presigned PUT returned non-2xx").
			WithDetail("status", resp.StatusCode).WithDetail("body", string(body))
	}
}

// ImportStatus is the raw status shape returned by the status
// endpoint.
type ImportStatus struct {
	Phase            string `json:"phase"`
	PhaseDescription string `json:"phaseDescription"`
	Status           string `json:"status"`
	TotalRows        int    `json:"totalRows"`
	ProcessedRows    int    `json:"processedRows"`
	Errors           int    `json:"errors"`
	ImportMode       string `json:"importMode"`
	Operations       struct {
		Inserted int `json:"inserted"`
		Updated  int `json:"updated"`
		Deleted  int `json:"deleted"`
	} `json:"operations"`
}

// TerminalPhases are the phases that will never change again.
var TerminalPhases = map[string]bool{"completed": true, "failed": true}

// GetImportStatus polls the status endpoint for a single upload.
func (c *Client) GetImportStatus(ctx context.Context, accountKey, uploadID string) (*ImportStatus, error) {
	reqURL := c.baseURL + "/v2/governance-tags/resources/import/status/" + uploadID

	resp, err := c.do(ctx, http.MethodGet, reqURL, nil, accountKey, importPollTimeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, vtagerrors.NewUpstreamTransient("import status fetch returned non-200").
			WithDetail("status", resp.StatusCode).WithDetail("body", string(data))
	}

	var out ImportStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, vtagerrors.NewUpstreamTransient("import status decode failed").WithCause(err)
	}
	return &out, nil
}
