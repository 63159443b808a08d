// Package api is the request/response collaborator: the read and write
// endpoints consumers close their fetch functions over. It carries no cache
// logic of its own.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/domain"
)

// ErrUnauthorized marks a rejected credential. It is a session-level
// condition, not an entry-level fetch failure: the unauthorized hook fires
// so the auth layer can purge the credential and re-authenticate.
var ErrUnauthorized = errors.New("api: unauthorized")

// Error is a non-2xx response from the service.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Body)
}

// CredentialFunc supplies the bearer token per request.
type CredentialFunc func() (string, error)

// Client talks to the admin read/write endpoints.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	credential     CredentialFunc
	onUnauthorized func()
	logger         *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying http client, used by tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithUnauthorizedHook installs the session-level handler for 401s.
func WithUnauthorizedHook(fn func()) ClientOption {
	return func(c *Client) { c.onUnauthorized = fn }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, credential CredentialFunc, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		credential: credential,
		logger:     logger.Named("api"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	token, err := c.credential()
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("Credential rejected", zap.String("path", path))
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{Status: resp.StatusCode, Body: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func listQuery(status string, page, limit int) url.Values {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// ListOrders fetches one page of orders.
func (c *Client) ListOrders(ctx context.Context, f domain.OrderFilters) (domain.Page[domain.Order], error) {
	var out domain.Page[domain.Order]
	err := c.get(ctx, "/admin/orders", listQuery(f.Status, f.Page, f.Limit), &out)
	return out, err
}

// GetOrder fetches one order by id.
func (c *Client) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var out domain.Order
	err := c.get(ctx, "/admin/orders/"+url.PathEscape(id), nil, &out)
	return out, err
}

// UpdateOrderStatus transitions one order.
func (c *Client) UpdateOrderStatus(ctx context.Context, id, status string) error {
	return c.post(ctx, "/admin/orders/"+url.PathEscape(id)+"/status",
		map[string]string{"status": status}, nil)
}

// ListRiders fetches one page of riders.
func (c *Client) ListRiders(ctx context.Context, f domain.RiderFilters) (domain.Page[domain.Rider], error) {
	var out domain.Page[domain.Rider]
	err := c.get(ctx, "/admin/riders", listQuery(f.Status, f.Page, f.Limit), &out)
	return out, err
}

// GetRider fetches one rider by id.
func (c *Client) GetRider(ctx context.Context, id string) (domain.Rider, error) {
	var out domain.Rider
	err := c.get(ctx, "/admin/riders/"+url.PathEscape(id), nil, &out)
	return out, err
}

// UpdateRiderStatus activates or suspends a rider.
func (c *Client) UpdateRiderStatus(ctx context.Context, id, status string) error {
	return c.post(ctx, "/admin/riders/"+url.PathEscape(id)+"/status",
		map[string]string{"status": status}, nil)
}

// ListKYC fetches pending identity submissions.
func (c *Client) ListKYC(ctx context.Context, status string) ([]domain.KYCSubmission, error) {
	var out []domain.KYCSubmission
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	err := c.get(ctx, "/admin/kyc", q, &out)
	return out, err
}

// ReviewKYC approves or rejects one submission.
func (c *Client) ReviewKYC(ctx context.Context, id string, approve bool, reason string) error {
	return c.post(ctx, "/admin/kyc/"+url.PathEscape(id)+"/review",
		map[string]any{"approve": approve, "reason": reason}, nil)
}

// ListTickets fetches one page of support tickets.
func (c *Client) ListTickets(ctx context.Context, f domain.TicketFilters) (domain.Page[domain.Ticket], error) {
	var out domain.Page[domain.Ticket]
	err := c.get(ctx, "/admin/tickets", listQuery(f.Status, f.Page, f.Limit), &out)
	return out, err
}

// TicketThread is a ticket with its conversation.
type TicketThread struct {
	Ticket   domain.Ticket          `json:"ticket"`
	Messages []domain.TicketMessage `json:"messages"`
}

// GetTicket fetches one ticket with its messages.
func (c *Client) GetTicket(ctx context.Context, id string) (TicketThread, error) {
	var out TicketThread
	err := c.get(ctx, "/admin/tickets/"+url.PathEscape(id), nil, &out)
	return out, err
}

// RespondTicket posts an admin reply to a ticket.
func (c *Client) RespondTicket(ctx context.Context, id, body string) error {
	return c.post(ctx, "/admin/tickets/"+url.PathEscape(id)+"/responses",
		map[string]string{"body": body}, nil)
}

// UpdateTicketStatus transitions one ticket.
func (c *Client) UpdateTicketStatus(ctx context.Context, id, status string) error {
	return c.post(ctx, "/admin/tickets/"+url.PathEscape(id)+"/status",
		map[string]string{"status": status}, nil)
}

// GetDashboardStats fetches the landing tiles.
func (c *Client) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var out domain.DashboardStats
	err := c.get(ctx, "/admin/stats/dashboard", nil, &out)
	return out, err
}

// GetOrderStats fetches the order chart data.
func (c *Client) GetOrderStats(ctx context.Context) (domain.OrderStats, error) {
	var out domain.OrderStats
	err := c.get(ctx, "/admin/stats/orders", nil, &out)
	return out, err
}

// GetRiderStats fetches the rider chart data.
func (c *Client) GetRiderStats(ctx context.Context) (domain.RiderStats, error) {
	var out domain.RiderStats
	err := c.get(ctx, "/admin/stats/riders", nil, &out)
	return out, err
}

// GetPaymentStats fetches the payments chart data.
func (c *Client) GetPaymentStats(ctx context.Context) (domain.PaymentStats, error) {
	var out domain.PaymentStats
	err := c.get(ctx, "/admin/stats/payments", nil, &out)
	return out, err
}

// GetSupportStats fetches the support workload data.
func (c *Client) GetSupportStats(ctx context.Context) (domain.SupportStats, error) {
	var out domain.SupportStats
	err := c.get(ctx, "/admin/stats/support", nil, &out)
	return out, err
}
