// Package ghstore is a client for the GitHub Contents API, used as a
// versioned JSON document store. Each document is one file in a repo; the
// blob SHA acts as the revision token for optimistic concurrency.
package ghstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/successcugo/ULAS/internal/errs"
)

// Client talks to one repository.
type Client struct {
	APIURL string
	Owner  string
	Repo   string
	Token  string
	HTTP   *http.Client
}

// New creates a client for owner/repo.
func New(apiURL, owner, repo, token string) *Client {
	return &Client{
		APIURL: apiURL,
		Owner:  owner,
		Repo:   repo,
		Token:  token,
		HTTP:   &http.Client{Timeout: 15 * time.Second},
	}
}

type contentsResponse struct {
	Content  string `json:"content"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
}

type putResponse struct {
	Content *struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.APIURL, c.Owner, c.Repo, path)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+c.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return req, nil
}

// Read fetches a document. It returns the raw file bytes and the blob SHA,
// or errs.ErrNotFound when no document exists at path.
func (c *Client) Read(ctx context.Context, path string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		observe(opRead, outcomeError)
		return nil, "", fmt.Errorf("ghstore: read %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		observe(opRead, outcomeNotFound)
		return nil, "", errs.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		observe(opRead, outcomeError)
		b, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("ghstore: read %s: %s: %s", path, resp.Status, truncate(b))
	}

	var out contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observe(opRead, outcomeError)
		return nil, "", fmt.Errorf("ghstore: decode %s: %w", path, err)
	}
	raw, err := base64.StdEncoding.DecodeString(stripNewlines(out.Content))
	if err != nil {
		observe(opRead, outcomeError)
		return nil, "", fmt.Errorf("ghstore: content of %s: %w", path, err)
	}
	observe(opRead, outcomeOK)
	return raw, out.SHA, nil
}

// ReadJSON reads a document and unmarshals it into v. The revision is
// returned alongside so the caller can write back with it.
func (c *Client) ReadJSON(ctx context.Context, path string, v any) (string, error) {
	raw, rev, err := c.Read(ctx, path)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return "", fmt.Errorf("ghstore: unmarshal %s: %w", path, err)
	}
	return rev, nil
}

// Write creates or updates the raw file at path. When expectedRev is empty
// the current SHA is fetched first (best effort — a race window exists
// between the fetch and the write). A mismatched revision is reported as
// errs.ErrConflict; the caller re-reads and retries or surfaces it.
// Returns the new revision.
func (c *Client) Write(ctx context.Context, path string, content []byte, message, expectedRev string) (string, error) {
	if expectedRev == "" {
		if _, rev, err := c.Read(ctx, path); err == nil {
			expectedRev = rev
		}
	}

	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if expectedRev != "" {
		payload["sha"] = expectedRev
	}
	body, _ := json.Marshal(payload)

	req, err := c.newRequest(ctx, http.MethodPut, path, body)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		observe(opWrite, outcomeError)
		return "", fmt.Errorf("ghstore: write %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		observe(opWrite, outcomeConflict)
		return "", fmt.Errorf("ghstore: write %s: %w", path, errs.ErrConflict)
	}
	if resp.StatusCode >= 300 {
		observe(opWrite, outcomeError)
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ghstore: write %s: %s: %s", path, resp.Status, truncate(b))
	}

	var out putResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Content == nil {
		observe(opWrite, outcomeError)
		return "", fmt.Errorf("ghstore: write %s: no revision in response", path)
	}
	observe(opWrite, outcomeOK)
	return out.Content.SHA, nil
}

// WriteJSON marshals doc (two-space indented, matching the stored format)
// and writes it.
func (c *Client) WriteJSON(ctx context.Context, path string, doc any, message, expectedRev string) (string, error) {
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ghstore: marshal %s: %w", path, err)
	}
	return c.Write(ctx, path, content, message, expectedRev)
}

// Delete removes the document at path. Deleting an absent document is a
// no-op success.
func (c *Client) Delete(ctx context.Context, path, message string) error {
	_, rev, err := c.Read(ctx, path)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}

	body, _ := json.Marshal(map[string]string{"message": message, "sha": rev})
	req, err := c.newRequest(ctx, http.MethodDelete, path, body)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		observe(opDelete, outcomeError)
		return fmt.Errorf("ghstore: delete %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		observe(opDelete, outcomeError)
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ghstore: delete %s: %s: %s", path, resp.Status, truncate(b))
	}
	observe(opDelete, outcomeOK)
	return nil
}

// PushFile writes arbitrary file content (e.g. an exported CSV), overwriting
// whatever is at path. Used against the archive repository.
func (c *Client) PushFile(ctx context.Context, path string, content []byte, message string) error {
	_, err := c.Write(ctx, path, content, message, "")
	return err
}

// Healthy reports whether the repository root is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s", c.APIURL, c.Owner, c.Repo), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "token "+c.Token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

// The contents API base64-encodes with line wrapping.
func stripNewlines(s string) string {
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			buf = append(buf, s[i])
		}
	}
	return string(buf)
}

func truncate(b []byte) string {
	if len(b) > 300 {
		b = b[:300]
	}
	return string(b)
}
