package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// EngineClient calls the engine API on behalf of one identity.
type EngineClient struct {
	http     *HttpClient
	identity Identity
}

func NewEngineClient(baseURL string, identity Identity) *EngineClient {
	return &EngineClient{
		http:     NewHttpClient(baseURL),
		identity: identity,
	}
}

// As returns a client sharing the transport but calling as another identity.
func (c *EngineClient) As(identity Identity) *EngineClient {
	return &EngineClient{http: c.http, identity: identity}
}

func (c *EngineClient) do(ctx context.Context, method, path string, body any) (*Response, error) {
	return c.http.Do(ctx, method, path, body, c.identity.headers())
}

func (c *EngineClient) Join(ctx context.Context, activityID string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/activities/"+url.PathEscape(activityID)+"/tickets", nil)
}

func (c *EngineClient) Position(ctx context.Context, ticketID string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/tickets/"+url.PathEscape(ticketID)+"/position", nil)
}

func (c *EngineClient) CancelTicket(ctx context.Context, ticketID string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, "/api/v1/tickets/"+url.PathEscape(ticketID), nil)
}

func (c *EngineClient) Reserve(ctx context.Context, serviceName, slotID, timeWindow string) (*Response, error) {
	body := map[string]any{"service_name": serviceName, "slot_id": slotID}
	if timeWindow != "" {
		body["time_window"] = timeWindow
	}
	return c.do(ctx, http.MethodPost, "/api/v1/reservations", body)
}

func (c *EngineClient) MyReservation(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/me/reservation", nil)
}

func (c *EngineClient) Extend(ctx context.Context, reservationID string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/reservations/"+url.PathEscape(reservationID)+"/extend", nil)
}

func (c *EngineClient) CancelReservation(ctx context.Context, reservationID string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, "/api/v1/reservations/"+url.PathEscape(reservationID), nil)
}

func (c *EngineClient) Availability(ctx context.Context, serviceName, timeWindow string) (*Response, error) {
	q := url.Values{}
	q.Set("service", serviceName)
	if timeWindow != "" {
		q.Set("time_window", timeWindow)
	}
	return c.do(ctx, http.MethodGet, "/api/v1/availability?"+q.Encode(), nil)
}

func (c *EngineClient) CreateActivity(ctx context.Context, name string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/admin/activities", map[string]string{"name": name})
}

func (c *EngineClient) CallNext(ctx context.Context, activityID string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/admin/activities/"+url.PathEscape(activityID)+"/call-next", nil)
}

// Resolve posts an admin ticket command: arrived, skip or absent.
func (c *EngineClient) Resolve(ctx context.Context, ticketID, command string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/admin/tickets/"+url.PathEscape(ticketID)+"/"+command, nil)
}

// Reservation posts an admin reservation command: check-in, finish,
// skip-time or cancel.
func (c *EngineClient) Reservation(ctx context.Context, reservationID, command string) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/admin/reservations/"+url.PathEscape(reservationID)+"/"+command, nil)
}

func (c *EngineClient) ListReservations(ctx context.Context, serviceName string, limit int, offset int64) (*Response, error) {
	path := fmt.Sprintf("/api/v1/admin/reservations?service=%s&limit=%d&offset=%d", url.QueryEscape(serviceName), limit, offset)
	return c.do(ctx, http.MethodGet, path, nil)
}
