package tracelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Traceline HTTP API client.
type Client struct {
	BaseURL     string
	OrgID       string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 10 * time.Second,
	}
}

// LicensePlate represents the API license plate model.
type LicensePlate struct {
	ID                 string `json:"id"`
	OrgID              string `json:"org_id"`
	LPNumber           string `json:"lp_number"`
	ProductDescription string `json:"product_description"`
	Quantity           string `json:"quantity"`
	UOM                string `json:"uom"`
	QAStatus           string `json:"qa_status"`
	StageSuffix        string `json:"stage_suffix,omitempty"`
	Location           string `json:"location,omitempty"`
	WOID               string `json:"wo_id,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

// CreateLicensePlate is the create request body.
type CreateLicensePlate struct {
	LPNumber           string `json:"lp_number"`
	ProductDescription string `json:"product_description,omitempty"`
	Quantity           string `json:"quantity"`
	UOM                string `json:"uom,omitempty"`
	QAStatus           string `json:"qa_status,omitempty"`
	StageSuffix        string `json:"stage_suffix,omitempty"`
	Location           string `json:"location,omitempty"`
	WOID               string `json:"wo_id,omitempty"`
}

// Inspection is a recorded QA result.
type Inspection struct {
	ID          string `json:"id"`
	LPID        string `json:"lp_id"`
	Result      string `json:"result"`
	Notes       string `json:"notes,omitempty"`
	InspectorID string `json:"inspector_id"`
	CreatedAt   string `json:"created_at"`
}

// TraceNode is one plate in a trace tree.
type TraceNode struct {
	NodeID             string       `json:"node_id"`
	NodeType           string       `json:"node_type"`
	NodeNumber         string       `json:"node_number"`
	ProductDescription string       `json:"product_description"`
	Quantity           float64      `json:"quantity"`
	UOM                string       `json:"uom"`
	QAStatus           string       `json:"qa_status"`
	ParentNode         string       `json:"parent_node,omitempty"`
	Depth              int          `json:"depth"`
	Children           []*TraceNode `json:"children"`
	Orphan             bool         `json:"orphan,omitempty"`
}

// TraceSummary aggregates a trace tree.
type TraceSummary struct {
	TotalNodes        int     `json:"total_nodes"`
	TotalQuantity     float64 `json:"total_quantity"`
	QAStatus          string  `json:"qa_status"`
	TraceCompleteness int     `json:"trace_completeness"`
}

// TraceData is the payload of a successful trace.
type TraceData struct {
	Root *TraceNode `json:"root"`
	Tree struct {
		Children []*TraceNode `json:"children"`
		Depth    int          `json:"depth"`
		Path     []string     `json:"path"`
	} `json:"tree"`
	Summary       TraceSummary `json:"summary"`
	HasMoreLevels bool         `json:"has_more_levels"`
}

// TraceResponse carries Data when Success and Message otherwise.
type TraceResponse struct {
	Success bool       `json:"success"`
	Data    *TraceData `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Genealogy holds both directions around a plate.
type Genealogy struct {
	LicensePlate LicensePlate  `json:"license_plate"`
	Backward     TraceResponse `json:"backward"`
	Forward      TraceResponse `json:"forward"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// TraceOptions tunes a trace request. Zero values use server defaults.
type TraceOptions struct {
	MaxDepth        int
	IncludeReversed *bool
}

// TraceForward returns everything made from lpNumber.
func (c *Client) TraceForward(ctx context.Context, lpNumber string, opts TraceOptions) (TraceResponse, error) {
	return c.trace(ctx, "forward", lpNumber, opts)
}

// TraceBackward returns everything lpNumber was made from.
func (c *Client) TraceBackward(ctx context.Context, lpNumber string, opts TraceOptions) (TraceResponse, error) {
	return c.trace(ctx, "backward", lpNumber, opts)
}

func (c *Client) trace(ctx context.Context, direction, lpNumber string, opts TraceOptions) (TraceResponse, error) {
	q := url.Values{}
	q.Set("lp", lpNumber)
	if opts.MaxDepth > 0 {
		q.Set("max_depth", strconv.Itoa(opts.MaxDepth))
	}
	if opts.IncludeReversed != nil {
		q.Set("include_reversed", strconv.FormatBool(*opts.IncludeReversed))
	}
	var resp TraceResponse
	err := c.do(ctx, http.MethodGet, c.orgPath("trace/"+direction)+"?"+q.Encode(), nil, &resp)
	return resp, err
}

// Genealogy returns both trace directions for a plate.
func (c *Client) Genealogy(ctx context.Context, lpNumber string) (Genealogy, error) {
	var resp Genealogy
	err := c.do(ctx, http.MethodGet, c.orgPath(fmt.Sprintf("license-plates/%s/genealogy", url.PathEscape(lpNumber))), nil, &resp)
	return resp, err
}

// CreateLicensePlate registers a plate.
func (c *Client) CreateLicensePlate(ctx context.Context, in CreateLicensePlate) (LicensePlate, error) {
	var resp LicensePlate
	err := c.do(ctx, http.MethodPost, c.orgPath("license-plates"), in, &resp)
	return resp, err
}

// GetLicensePlate fetches a plate by number.
func (c *Client) GetLicensePlate(ctx context.Context, lpNumber string) (LicensePlate, error) {
	var resp LicensePlate
	err := c.do(ctx, http.MethodGet, c.orgPath("license-plates/"+url.PathEscape(lpNumber)), nil, &resp)
	return resp, err
}

// RecordInspection records a QA result for a plate.
func (c *Client) RecordInspection(ctx context.Context, lpNumber, result, notes string) (Inspection, error) {
	var resp Inspection
	endpoint := c.orgPath(fmt.Sprintf("license-plates/%s/inspections", url.PathEscape(lpNumber)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"result": result, "notes": notes}, &resp)
	return resp, err
}

// LinkConsumption records parentID consumed into childID and returns the link id.
func (c *Client) LinkConsumption(ctx context.Context, parentID, childID, quantity, woID string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, c.orgPath("genealogy/link-consumption"), map[string]any{
		"parent_lp_id": parentID,
		"child_lp_id":  childID,
		"quantity":     quantity,
		"wo_id":        woID,
	}, &resp)
	return resp.ID, err
}

// LinkOutput records the consumed plates behind an output plate.
func (c *Client) LinkOutput(ctx context.Context, consumedIDs []string, outputID, woID string) ([]string, error) {
	var resp struct {
		IDs []string `json:"ids"`
	}
	err := c.do(ctx, http.MethodPost, c.orgPath("genealogy/link-output"), map[string]any{
		"consumed_lp_ids": consumedIDs,
		"output_lp_id":    outputID,
		"wo_id":           woID,
	}, &resp)
	return resp.IDs, err
}

// ReverseLink marks a link reversed.
func (c *Client) ReverseLink(ctx context.Context, linkID string) error {
	return c.do(ctx, http.MethodPost, c.orgPath(fmt.Sprintf("genealogy/%s/reverse", url.PathEscape(linkID))), nil, nil)
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.orgPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) orgPath(p string) string {
	return fmt.Sprintf("v0/orgs/%s/%s", url.PathEscape(c.OrgID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
