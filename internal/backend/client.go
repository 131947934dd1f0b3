package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"anipink/pkg/models"
)

// APIError is a non-2xx relay answer. It unwraps to the matching sentinel.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("relay: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusConflict:
		return ErrInvalid
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ErrUnavailable
	default:
		return nil
	}
}

type AuthResult struct {
	UserID    string
	Username  string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// RelayClient speaks the relay's HTTP and websocket API.
type RelayClient struct {
	BaseURL string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
}

func NewRelayClient(baseURL string) *RelayClient {
	return &RelayClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		Dialer:  websocket.DefaultDialer,
	}
}

type authResponse struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (r authResponse) result() AuthResult {
	exp, _ := time.Parse(time.RFC3339, r.ExpiresAt)
	return AuthResult{
		UserID:    r.User.ID,
		Username:  r.User.Username,
		Email:     r.User.Email,
		Token:     r.Token,
		ExpiresAt: exp,
	}
}

func (c *RelayClient) Register(ctx context.Context, email, password, username string) (AuthResult, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if username != "" {
		body["username"] = username
	}
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", body, &resp); err != nil {
		return AuthResult{}, fmt.Errorf("register: %w", err)
	}
	return resp.result(), nil
}

func (c *RelayClient) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return AuthResult{}, fmt.Errorf("login: %w", err)
	}
	return resp.result(), nil
}

func (c *RelayClient) Logout(ctx context.Context, token string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *RelayClient) Profile(ctx context.Context, token string) (models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodGet, "/api/profile", token, nil, &p); err != nil {
		return models.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (c *RelayClient) ListAnime(ctx context.Context, token string) ([]models.Anime, error) {
	var resp struct {
		Items []models.Anime `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/anime", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("list anime: %w", err)
	}
	return resp.Items, nil
}

func (c *RelayClient) PutAnime(ctx context.Context, token, uid string, a models.Anime) error {
	body := struct {
		UID   string       `json:"uid"`
		Anime models.Anime `json:"anime"`
	}{uid, a}
	if err := c.do(ctx, http.MethodPost, "/api/anime", token, body, nil); err != nil {
		return fmt.Errorf("write anime: %w", err)
	}
	return nil
}

func (c *RelayClient) PutProfile(ctx context.Context, token, uid string, u models.ProfileUpdate) error {
	body := struct {
		UID     string               `json:"uid"`
		Updates models.ProfileUpdate `json:"updates"`
	}{uid, u}
	if err := c.do(ctx, http.MethodPost, "/api/profile", token, body, nil); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Subscribe opens the change stream for topic ("anime" or "profile").
func (c *RelayClient) Subscribe(ctx context.Context, token, topic string) (*websocket.Conn, error) {
	u, err := url.Parse(c.BaseURL + "/api/subscribe")
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"topic": {topic}}.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := c.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic, &APIError{Status: resp.StatusCode})
		}
		return nil, fmt.Errorf("subscribe %s: %w: %w", topic, ErrUnavailable, err)
	}
	return conn, nil
}

func (c *RelayClient) do(ctx context.Context, method, path, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
