// Package client is a Go client of the alama REST API.
//
// It applies the score rules locally before calling the server: rate schemas and slot scores are
// validated, and confirm preconditions are checked against the record at hand, so that a request
// bound to fail is never sent. Records passed to the client are never modified; callers use the
// returned values instead.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
)

const defaultSchemaTTL = 5 * time.Minute

// RemoteError is returned when a request fails on the network or on the server.
// StatusCode is 0 when no response was received.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote failure: %v", e.Err)
	}
	return fmt.Sprintf("remote failure (%d): %s", e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemote reports whether err, or any error it wraps, is a *RemoteError.
func IsRemote(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.rest.HTTPClient = hc }
}

// WithSchemaTTL sets how long a fetched rate schema is used before being fetched again.
func WithSchemaTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

type Client struct {
	baseURL string
	token   string
	rest    *rest.Client
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	schema   score.RateSchema
	loadedAt time.Time
	loaded   bool
}

// New returns a Client of the API at baseURL authenticating with the bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		rest:    &rest.Client{HTTPClient: http.DefaultClient},
		ttl:     defaultSchemaTTL,
		now:     time.Now,
		schema:  score.DefaultRateSchema,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) send(ctx context.Context, method rest.Method, path string, query map[string]string, body, out interface{}) error {
	req := rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": "Bearer " + c.token,
		},
		QueryParams: query,
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		req.Headers["Content-Type"] = "application/json"
		req.Body = data
	}

	res, err := c.do(ctx, req)
	if err != nil {
		return &RemoteError{Err: err}
	}
	if res.StatusCode >= http.StatusBadRequest {
		return &RemoteError{StatusCode: res.StatusCode, Message: errorMessage(res.Body)}
	}
	if out != nil {
		if err = json.Unmarshal([]byte(res.Body), out); err != nil {
			return &RemoteError{StatusCode: res.StatusCode, Message: "malformed response", Err: err}
		}
	}
	return nil
}

// do sends req bound to ctx, so that a cancelled context aborts the request.
func (c *Client) do(ctx context.Context, req rest.Request) (*rest.Response, error) {
	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	httpRes, err := c.rest.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(httpRes)
}

// errorMessage extracts the message of an API error body: `{"error": msg}` or a field errors map.
func errorMessage(body string) string {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return strings.TrimSpace(body)
	}
	if msg, ok := m["error"].(string); ok {
		return msg
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

type listResponse struct {
	Results json.RawMessage `json:"results"`
}

// FetchRateSchema fetches the rate schema in force and caches it.
// score.DefaultRateSchema is returned when none is configured. On failure, the last known schema
// (the default until one was fetched) is returned along with the error.
func (c *Client) FetchRateSchema(ctx context.Context) (score.RateSchema, error) {
	var res listResponse
	if err := c.send(ctx, rest.Get, "/v1/settings", nil, nil, &res); err != nil {
		return c.cachedSchema(), err
	}
	var settings []setting.Setting
	if err := json.Unmarshal(res.Results, &settings); err != nil {
		return c.cachedSchema(), &RemoteError{StatusCode: http.StatusOK, Message: "malformed response", Err: err}
	}

	rs := score.DefaultRateSchema
	if len(settings) > 0 {
		if stored, err := settings[0].Data.ScoreSchema(); err == nil && stored != nil {
			rs = *stored
		}
	}
	c.cache(rs)
	return rs, nil
}

// RateSchema returns the cached rate schema, fetching it when stale. It never fails: the last known
// schema is used when the fetch does.
func (c *Client) RateSchema(ctx context.Context) score.RateSchema {
	c.mu.Lock()
	fresh := c.loaded && c.now().Sub(c.loadedAt) < c.ttl
	rs := c.schema
	c.mu.Unlock()
	if fresh {
		return rs
	}
	rs, _ = c.FetchRateSchema(ctx)
	return rs
}

func (c *Client) cachedSchema() score.RateSchema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema
}

func (c *Client) cache(rs score.RateSchema) {
	c.mu.Lock()
	c.schema, c.loadedAt, c.loaded = rs, c.now(), true
	c.mu.Unlock()
}

// UpdateRateSchema validates candidate and saves it as the rate schema in force.
// An invalid candidate is reported as a *score.RateError without any request being sent.
func (c *Client) UpdateRateSchema(ctx context.Context, candidate map[score.Bucket]float64) (score.RateSchema, error) {
	rs, err := score.ValidateRates(candidate)
	if err != nil {
		return score.RateSchema{}, err
	}
	var s setting.Setting
	if err = c.send(ctx, rest.Put, "/v1/settings/score-schema", nil, rs, &s); err != nil {
		return score.RateSchema{}, err
	}
	c.cache(rs)
	return rs, nil
}

// ListScores lists the score records matching filter.
func (c *Client) ListScores(ctx context.Context, filter score.QueryFilter) ([]score.View, error) {
	query := make(map[string]string, 2)
	if filter.ClassSubjectID != "" {
		query["class_subject_id"] = filter.ClassSubjectID
	}
	if filter.StudentID != "" {
		query["student_id"] = filter.StudentID
	}

	var res listResponse
	if err := c.send(ctx, rest.Get, "/v1/scores", query, nil, &res); err != nil {
		return nil, err
	}
	var views []score.View
	if err := json.Unmarshal(res.Results, &views); err != nil {
		return nil, &RemoteError{StatusCode: http.StatusOK, Message: "malformed response", Err: err}
	}
	return views, nil
}

// OutOfRangeError is returned when a slot score is not in [score.MinScore, score.MaxScore].
type OutOfRangeError struct {
	Slot  score.Slot
	Value float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s score %v is out of range [%d, %d]", e.Slot, e.Value, score.MinScore, score.MaxScore)
}

// UnknownSlotError is returned when an update holds a slot that does not exist.
type UnknownSlotError struct {
	Slot score.Slot
}

func (e *UnknownSlotError) Error() string {
	return fmt.Sprintf("%q is not a valid exam", string(e.Slot))
}

func validateUpdate(upd score.Update) error {
	slots := make([]string, 0, len(upd.Score))
	for slot := range upd.Score {
		slots = append(slots, string(slot))
	}
	sort.Strings(slots)
	for _, s := range slots {
		slot := score.Slot(s)
		if !slot.Valid() {
			return &UnknownSlotError{Slot: slot}
		}
		if val := upd.Score[slot]; val != nil && !(*val >= score.MinScore && *val <= score.MaxScore) {
			return &OutOfRangeError{Slot: slot, Value: *val}
		}
	}
	return nil
}

// UpdateScores applies a partial scores update to the record with the given id.
// Out of range scores are rejected without any request being sent.
func (c *Client) UpdateScores(ctx context.Context, id string, upd score.Update) (score.View, error) {
	if err := validateUpdate(upd); err != nil {
		return score.View{}, err
	}
	if upd.Score == nil {
		upd.Score = map[score.Slot]*float64{}
	}
	var view score.View
	if err := c.send(ctx, rest.Put, "/v1/scores/"+url.PathEscape(id), nil, upd, &view); err != nil {
		return score.View{}, err
	}
	return view, nil
}

// Confirm confirms rec. The preconditions are checked on rec first: a record that is not OPEN gives
// score.ErrAlreadyConfirmed and one missing MIDDLE or FINAL gives score.ErrIncompleteRequired,
// without any request being sent.
func (c *Client) Confirm(ctx context.Context, rec score.Record) (score.View, error) {
	if rec.Status != score.StatusOpen {
		return score.View{}, score.ErrAlreadyConfirmed
	}
	if !rec.Score.HasRequired() {
		return score.View{}, score.ErrIncompleteRequired
	}
	body := map[string]score.Status{"status": score.StatusConfirm}
	var view score.View
	if err := c.send(ctx, rest.Put, "/v1/scores/"+url.PathEscape(rec.ID), nil, body, &view); err != nil {
		return score.View{}, err
	}
	return view, nil
}

// Preview returns the conclusion to display for rec: its persisted average when confirmed, or a
// provisional one computed with the cached rate schema. It is never written back.
func (c *Client) Preview(ctx context.Context, rec score.Record) *score.Conclusion {
	return rec.Conclusion(c.RateSchema(ctx))
}
