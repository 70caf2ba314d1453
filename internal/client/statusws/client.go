package statusws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/integrity"
	"github.com/dmitrijs2005/shiftsync/internal/client/syncer"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// APIError is a non-2xx reply of the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon replied %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match well-known failures with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusServiceUnavailable:
		return syncer.ErrOffline
	}
	return nil
}

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient accepts "host:port" or a full base URL.
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func recordPath(table models.Table, id string) string {
	return "/records/" + url.PathEscape(string(table)) + "/" + url.PathEscape(id)
}

func (c *Client) Status(ctx context.Context) (syncer.Status, error) {
	var s syncer.Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &s)
	return s, err
}

func (c *Client) Sync(ctx context.Context) (syncer.DrainResult, error) {
	var res syncer.DrainResult
	err := c.do(ctx, http.MethodPost, "/sync", nil, &res)
	return res, err
}

func (c *Client) ForceSync(ctx context.Context) (syncer.Status, error) {
	var s syncer.Status
	err := c.do(ctx, http.MethodPost, "/sync/force", nil, &s)
	return s, err
}

func (c *Client) SetAutoSync(ctx context.Context, enabled bool) (syncer.Status, error) {
	var s syncer.Status
	err := c.do(ctx, http.MethodPost, "/sync/auto", AutoSyncRequest{Enabled: &enabled}, &s)
	return s, err
}

func (c *Client) Check(ctx context.Context) (integrity.Report, error) {
	var rep integrity.Report
	err := c.do(ctx, http.MethodPost, "/integrity/check", nil, &rep)
	return rep, err
}

func (c *Client) List(ctx context.Context, table models.Table) ([]models.Record, error) {
	var recs []models.Record
	err := c.do(ctx, http.MethodGet, "/records/"+url.PathEscape(string(table)), nil, &recs)
	return recs, err
}

func (c *Client) Get(ctx context.Context, table models.Table, id string) (models.Record, error) {
	var rec models.Record
	err := c.do(ctx, http.MethodGet, recordPath(table, id), nil, &rec)
	return rec, err
}

func (c *Client) Put(ctx context.Context, table models.Table, id string, fields models.Fields) (models.Record, error) {
	var rec models.Record
	err := c.do(ctx, http.MethodPut, recordPath(table, id), PutRequest{Fields: fields}, &rec)
	return rec, err
}

func (c *Client) Delete(ctx context.Context, table models.Table, id string) (models.Record, error) {
	var rec models.Record
	err := c.do(ctx, http.MethodDelete, recordPath(table, id), nil, &rec)
	return rec, err
}
