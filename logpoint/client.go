package logpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/internal/httpclient"
	"github.com/teranos/lpharvest/logger"
)

const (
	searchPath = "/getsearchlogs"

	// DefaultWaiterID identifies this client to Logpoint when retrieving results
	DefaultWaiterID = "lpharvest"

	maxBodyBytes = 64 << 20
)

// Options configures a Client
type Options struct {
	Timeout              time.Duration // HTTP timeout per call (default 100s)
	SearchTimeout        time.Duration // sent to Logpoint as the search timeout (default 60s)
	WaiterID             string
	AllowPrivateNetworks bool
	UserAgent            string
	Record               RecordOptions
	Transport            http.RoundTripper
	Now                  func() time.Time
}

// Client performs authenticated search calls against one Logpoint instance.
// It holds no per-search state and is safe for concurrent use.
type Client struct {
	creds    Credentials
	endpoint string
	http     *httpclient.Client
	opts     Options
	logger   *zap.SugaredLogger
}

// NewClient validates the credentials and builds a client
func NewClient(creds Credentials, opts Options, log *zap.SugaredLogger) (*Client, error) {
	if creds.BaseURL == "" {
		return nil, errors.NewInvalidRequestError("logpoint base URL is required")
	}
	if creds.Account == "" {
		return nil, errors.NewInvalidRequestError("logpoint account is required")
	}
	if creds.SecretKey == "" {
		return nil, errors.WithHint(errors.NewInvalidRequestError("logpoint secret key is required"),
			"set logpoint.secret_key or LPHARVEST_LOGPOINT_SECRET_KEY")
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 60 * time.Second
	}
	if opts.WaiterID == "" {
		opts.WaiterID = DefaultWaiterID
	}
	if opts.Record.IDField == "" {
		opts.Record.IDField = "_id"
	}
	if opts.Record.TimestampField == "" {
		opts.Record.TimestampField = "log_ts"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	hc := httpclient.New(httpclient.Options{
		Timeout:        opts.Timeout,
		BlockPrivateIP: !opts.AllowPrivateNetworks,
		UserAgent:      opts.UserAgent,
		Transport:      opts.Transport,
	})

	endpoint := creds.BaseURL + searchPath
	if _, err := hc.ValidateURL(endpoint); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "logpoint base URL"), errors.ErrInvalidRequest)
	}

	return &Client{
		creds:    creds,
		endpoint: endpoint,
		http:     hc,
		opts:     opts,
		logger:   logger.OrNop(log),
	}, nil
}

// Search performs one call. An empty cursor starts a new search for the
// repository and returns a page with no records whose cursor retrieves the
// first rows. Every call after that retrieves the next version.
func (c *Client) Search(ctx context.Context, req PageRequest) (*PageResponse, error) {
	if req.Cursor == "" {
		searchID, err := c.startSearch(ctx, req)
		if err != nil {
			return nil, err
		}
		return &PageResponse{
			NextCursor: cursor{SearchID: searchID}.encode(),
			Total:      -1,
			Started:    true,
		}, nil
	}

	cur, err := decodeCursor(req.Cursor)
	if err != nil {
		return nil, &ServiceError{Message: "unrecognized cursor: " + err.Error()}
	}
	return c.retrieve(ctx, req.Repository, cur)
}

type startRequest struct {
	Repos     []string `json:"repos"`
	Limit     int      `json:"limit"`
	TimeRange []int64  `json:"time_range"`
	Query     string   `json:"query"`
	Timeout   int      `json:"timeout"`
}

type retrieveRequest struct {
	SearchID    string `json:"search_id"`
	WaiterID    string `json:"waiter_id"`
	SeenVersion *int64 `json:"seen_version"`
}

type searchResponse struct {
	Success    *bool            `json:"success"`
	Message    string           `json:"message"`
	SearchID   string           `json:"search_id"`
	Final      bool             `json:"final"`
	Version    *int64           `json:"version"`
	Rows       []map[string]any `json:"rows"`
	TotalCount *int             `json:"totalCount"`
}

func (c *Client) startSearch(ctx context.Context, req PageRequest) (string, error) {
	if !req.Range.Valid() {
		return "", &InvalidQueryError{Message: "time range must have start <= end"}
	}
	if req.Repository == "" {
		return "", &InvalidQueryError{Message: "repository is required"}
	}
	if req.Limit <= 0 {
		return "", &InvalidQueryError{Message: "limit must be positive"}
	}

	body := startRequest{
		Repos:     []string{req.Repository},
		Limit:     req.Limit,
		TimeRange: req.Range.wire(),
		Query:     req.Query,
		Timeout:   int(c.opts.SearchTimeout / time.Second),
	}

	resp, err := c.call(ctx, body)
	if err != nil {
		return "", err
	}
	if resp.SearchID == "" {
		return "", &TransientError{Message: "search started without a search_id"}
	}

	c.logger.Debugw("Search started",
		logger.FieldRepo, req.Repository,
		logger.FieldSearchID, resp.SearchID,
		logger.FieldLimit, req.Limit,
	)
	return resp.SearchID, nil
}

func (c *Client) retrieve(ctx context.Context, repo string, cur cursor) (*PageResponse, error) {
	resp, err := c.call(ctx, retrieveRequest{
		SearchID:    cur.SearchID,
		WaiterID:    c.opts.WaiterID,
		SeenVersion: cur.SeenVersion,
	})
	if err != nil {
		return nil, err
	}

	page := &PageResponse{
		Records: make([]RawRecord, 0, len(resp.Rows)),
		Total:   -1,
	}
	for _, row := range resp.Rows {
		if row == nil {
			continue
		}
		page.Records = append(page.Records, NewRecord(repo, row, c.opts.Record))
	}
	if resp.TotalCount != nil {
		page.Total = *resp.TotalCount
	}

	if !resp.Final {
		next := cursor{SearchID: cur.SearchID, SeenVersion: cur.SeenVersion}
		if resp.Version != nil {
			next.SeenVersion = resp.Version
		}
		page.NextCursor = next.encode()
	}

	c.logger.Debugw("Results retrieved",
		logger.FieldRepo, repo,
		logger.FieldSearchID, cur.SearchID,
		logger.FieldCount, len(page.Records),
		logger.FieldFinal, resp.Final,
	)
	return page, nil
}

// call posts one requestData document and decodes the response envelope
func (c *Client) call(ctx context.Context, requestData any) (*searchResponse, error) {
	payload, err := json.Marshal(requestData)
	if err != nil {
		return nil, errors.Wrap(err, "encode requestData")
	}

	form := url.Values{}
	form.Set("username", c.creds.Account)
	form.Set("secret_key", c.creds.SecretKey)
	form.Set("requestData", string(payload))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransientError{Message: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransientError{StatusCode: httpResp.StatusCode, Message: "read body", Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, classifyStatus(httpResp.StatusCode, httpResp.Header, string(body), c.opts.Now())
	}

	var resp searchResponse
	decoder := json.NewDecoder(bytes.NewReader(body))
	// Keep numbers as written; ids and epoch values exceed float64 precision
	decoder.UseNumber()
	if err := decoder.Decode(&resp); err != nil {
		preview := body
		if len(preview) > 256 {
			preview = preview[:256]
		}
		return nil, &TransientError{
			StatusCode: httpResp.StatusCode,
			Message:    "decode response: " + string(preview),
			Err:        err,
		}
	}
	if resp.Success != nil && !*resp.Success {
		return nil, classifyMessage(resp.Message)
	}
	return &resp, nil
}
