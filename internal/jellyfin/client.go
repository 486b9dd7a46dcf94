// Package jellyfin implements a minimal REST client for the Jellyfin
// server API, covering the user-administration surface the account
// manager needs. Authentication uses a static API key sent as
// X-Emby-Token on every request.
package jellyfin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL string, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is returned for any non-2xx Jellyfin response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jellyfin: unexpected status %d: %s", e.StatusCode, e.Body)
}

type SystemInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
	Id         string `json:"Id"`
}

type User struct {
	Id                        string     `json:"Id"`
	Name                      string     `json:"Name"`
	LastActivityDate          *time.Time `json:"LastActivityDate"`
	Policy                    UserPolicy `json:"Policy"`
	HasPassword               bool       `json:"HasPassword"`
	HasConfiguredPassword     bool       `json:"HasConfiguredPassword"`
	HasConfiguredEasyPassword bool       `json:"HasConfiguredEasyPassword"`
}

// UserPolicy carries only the fields the manager toggles directly.
// Raw holds the full policy document so profile application can round
// trip fields this struct does not model.
type UserPolicy struct {
	IsAdministrator bool `json:"IsAdministrator"`
	IsDisabled      bool `json:"IsDisabled"`
}

type PlayStats struct {
	TotalPlayCount   int   `json:"TotalPlayCount"`
	TotalPlayTimeSec int64 `json:"TotalPlayTimeSec"`
}

type createUserRequest struct {
	Name     string `json:"Name"`
	Password string `json:"Password"`
}

type setPasswordRequest struct {
	NewPw         string `json:"NewPw"`
	ResetPassword bool   `json:"ResetPassword"`
}

func (c *Client) do(ctx context.Context, method string, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Emby-Token", c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

func (c *Client) doJSON(ctx context.Context, method string, path string, reqBody any, respBody any) error {
	var reader io.Reader
	if reqBody != nil {
		payload, err := sonic.Marshal(reqBody)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	resp, err := c.do(ctx, method, path, reader, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if respBody == nil {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return sonic.Unmarshal(raw, respBody)
}

// SystemInfo is used as a connectivity probe at startup.
func (c *Client) SystemInfo(ctx context.Context) (SystemInfo, error) {
	var info SystemInfo
	err := c.doJSON(ctx, http.MethodGet, "/System/Info", nil, &info)
	return info, err
}

func (c *Client) CreateUser(ctx context.Context, name string, password string) (User, error) {
	var user User
	err := c.doJSON(ctx, http.MethodPost, "/Users/New", createUserRequest{Name: name, Password: password}, &user)
	return user, err
}

func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	err := c.doJSON(ctx, http.MethodGet, "/Users/"+url.PathEscape(id), nil, &user)
	return user, err
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/Users/"+url.PathEscape(id), nil, nil)
}

// SetUserPolicy replaces the user's full policy document. The policy
// argument is raw JSON so profile templates pass through untouched.
func (c *Client) SetUserPolicy(ctx context.Context, id string, policy []byte) error {
	resp, err := c.do(ctx, http.MethodPost, "/Users/"+url.PathEscape(id)+"/Policy", bytes.NewReader(policy), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return nil
}

// GetUserPolicy fetches the raw policy document of an existing user,
// used when capturing a profile template.
func (c *Client) GetUserPolicy(ctx context.Context, id string) ([]byte, error) {
	var user struct {
		Policy sonic.NoCopyRawMessage `json:"Policy"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/Users/"+url.PathEscape(id), nil, &user)
	if err != nil {
		return nil, err
	}
	return []byte(user.Policy), nil
}

func (c *Client) SetUserPassword(ctx context.Context, id string, newPassword string) error {
	return c.doJSON(ctx, http.MethodPost, "/Users/"+url.PathEscape(id)+"/Password", setPasswordRequest{NewPw: newPassword}, nil)
}

// SetUserDisabled toggles IsDisabled while preserving the rest of the
// policy document.
func (c *Client) SetUserDisabled(ctx context.Context, id string, disabled bool) error {
	policy, err := c.GetUserPolicy(ctx, id)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := sonic.Unmarshal(policy, &doc); err != nil {
		return err
	}
	doc["IsDisabled"] = disabled

	updated, err := sonic.Marshal(doc)
	if err != nil {
		return err
	}

	return c.SetUserPolicy(ctx, id, updated)
}

func (c *Client) UploadUserImage(ctx context.Context, id string, contentType string, image io.Reader) error {
	resp, err := c.do(ctx, http.MethodPost, "/Users/"+url.PathEscape(id)+"/Images/Primary", image, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return nil
}

// UserPlayStats aggregates play counts from the playback reporting
// endpoint. Servers without the plugin return 404, reported as an
// APIError the caller can treat as "no stats".
func (c *Client) UserPlayStats(ctx context.Context, id string) (PlayStats, error) {
	var items struct {
		Items []struct {
			UserData struct {
				PlayCount int `json:"PlayCount"`
			} `json:"UserData"`
			RunTimeTicks int64 `json:"RunTimeTicks"`
		} `json:"Items"`
		TotalRecordCount int `json:"TotalRecordCount"`
	}

	path := "/Users/" + url.PathEscape(id) + "/Items?Filters=IsPlayed&Recursive=true&IncludeItemTypes=Movie,Episode"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &items); err != nil {
		return PlayStats{}, err
	}

	var stats PlayStats
	for _, item := range items.Items {
		stats.TotalPlayCount += item.UserData.PlayCount
		// RunTimeTicks are 100ns units
		stats.TotalPlayTimeSec += item.RunTimeTicks / 10_000_000
	}

	return stats, nil
}
