// Package client talks to the backend of record over REST.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grraffic/ordertracking/internal/enum"
	"github.com/grraffic/ordertracking/internal/model"
)

// StatusError is a non-2xx response that maps to no domain error.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// Client is a REST client for the item and order endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. token, when set, is sent as a bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ListItems fetches every non-archived item record.
func (c *Client) ListItems(ctx context.Context) ([]model.ItemRecord, error) {
	var items []model.ItemRecord
	if err := c.do(ctx, http.MethodGet, "/items", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListOrders fetches orders, optionally filtered by status.
func (c *Client) ListOrders(ctx context.Context, status string) ([]model.Order, error) {
	path := "/orders"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderByNumber returns model.ErrNotFound on 404.
func (c *Client) GetOrderByNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	var o model.Order
	err := c.do(ctx, http.MethodGet, "/orders/number/"+url.PathEscape(orderNumber), nil, &o)
	return o, err
}

// ClaimOrder asks the backend to move the order to claimed. The backend
// applies it only if the order is not claimed yet; a conflict comes back as
// *model.AlreadyClaimedError or model.ErrOrderCancelled.
func (c *Client) ClaimOrder(ctx context.Context, id uuid.UUID, attemptID string) (model.Order, error) {
	body := model.StatusRequest{Status: enum.OrderStatusClaimed, AttemptID: attemptID}
	var o model.Order
	err := c.do(ctx, http.MethodPatch, "/orders/"+id.String()+"/status", body, &o)

	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict {
		var conflict model.ConflictResponse
		if json.Unmarshal([]byte(se.Body), &conflict) == nil {
			switch conflict.Status {
			case enum.OrderStatusClaimed:
				return model.Order{}, &model.AlreadyClaimedError{ClaimedDate: conflict.ClaimedDate}
			case enum.OrderStatusCancelled:
				return model.Order{}, model.ErrOrderCancelled
			}
		}
		return model.Order{}, fmt.Errorf("%w: %s", model.ErrAlreadyClaimed, se.Body)
	}
	return o, err
}

// AdjustItem applies a stock delta to one item record. A 409 maps to
// model.ErrInsufficientStock.
func (c *Client) AdjustItem(ctx context.Context, id uuid.UUID, req model.AdjustRequest) (model.ItemRecord, error) {
	var item model.ItemRecord
	err := c.do(ctx, http.MethodPatch, "/items/"+id.String()+"/adjust", req, &item)

	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict {
		return model.ItemRecord{}, fmt.Errorf("%w: %s", model.ErrInsufficientStock, se.Body)
	}
	return item, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: %w", method, path, model.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
