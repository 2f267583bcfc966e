// Package client is the campusline client library: heartbeat, event
// subscription with a polling fallback, and a friendship status cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"campusline/models"
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("campusline: %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// API is a thin typed wrapper over the HTTP endpoints.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{baseURL: baseURL, token: token, http: httpClient}
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (a *API) Online(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/status/online", nil, nil)
}

func (a *API) Offline(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/status/offline", nil, nil)
}

// OfflineBeacon sends the offline signal with the token in the query string
// and does not wait for the response body.
func (a *API) OfflineBeacon(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/api/status/offline?token="+url.QueryEscape(a.token), nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (a *API) Status(ctx context.Context, userID string) (*models.StatusResponse, error) {
	var status models.StatusResponse
	err := a.do(ctx, http.MethodGet, "/api/status?userId="+url.QueryEscape(userID), nil, &status)
	return &status, err
}

func (a *API) Friends(ctx context.Context) ([]*models.FriendWithUser, error) {
	var friends []*models.FriendWithUser
	err := a.do(ctx, http.MethodGet, "/api/friends", nil, &friends)
	return friends, err
}

func (a *API) IncomingRequests(ctx context.Context) ([]*models.FriendWithUser, error) {
	var requests []*models.FriendWithUser
	err := a.do(ctx, http.MethodGet, "/api/friends/requests", nil, &requests)
	return requests, err
}

func (a *API) OutgoingRequests(ctx context.Context) ([]*models.FriendWithUser, error) {
	var requests []*models.FriendWithUser
	err := a.do(ctx, http.MethodGet, "/api/friends/requests/sent", nil, &requests)
	return requests, err
}

func (a *API) FriendshipStatus(ctx context.Context, userID string) (models.FriendshipState, error) {
	var state models.FriendshipState
	err := a.do(ctx, http.MethodGet, "/api/friends/status/"+url.PathEscape(userID), nil, &state)
	return state, err
}

func (a *API) SendRequest(ctx context.Context, userID string) (*models.Friendship, error) {
	var f models.Friendship
	err := a.do(ctx, http.MethodPost, "/api/friends/request", map[string]string{"user_id": userID}, &f)
	return &f, err
}

func (a *API) Accept(ctx context.Context, userID string) (*models.Friendship, error) {
	var f models.Friendship
	err := a.do(ctx, http.MethodPost, "/api/friends/accept/"+url.PathEscape(userID), nil, &f)
	return &f, err
}

func (a *API) Reject(ctx context.Context, userID string) (*models.Friendship, error) {
	var f models.Friendship
	err := a.do(ctx, http.MethodPost, "/api/friends/reject/"+url.PathEscape(userID), nil, &f)
	return &f, err
}

func (a *API) RemoveFriend(ctx context.Context, userID string) error {
	return a.do(ctx, http.MethodDelete, "/api/friends/"+url.PathEscape(userID), nil, nil)
}

func (a *API) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	err := a.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &out)
	return out.Count, err
}
