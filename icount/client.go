// Package icount talks to the iCount accounting API. It is a secondary
// integration with the same pending/retry shape as the reconciler: session
// credentials are cached with a fixed expiry, outbound requests are gated
// by a sliding-window governor, and an authentication rejection clears the
// cached session and retries exactly once.
package icount

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/printflowhq/printshop_backend/config"
)

const (
	sessionTTL     = 30 * time.Minute
	requestTimeout = 30 * time.Second
	defaultRateMax = 30 // requests per rolling minute
)

var ErrAuthRejected = errors.New("icount session rejected")

type cachedSession struct {
	Sid       string    `json:"sid"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Client struct {
	baseURL   string
	companyId string
	username  string
	password  string
	http      *http.Client
	limiter   *slidingWindow
	logger    *logrus.Logger

	mu      sync.Mutex
	session cachedSession
}

func NewClient(companyId string, username string, password string, logger *logrus.Logger) (*Client, error) {
	if strings.TrimSpace(companyId) == "" || strings.TrimSpace(username) == "" {
		return nil, errors.New("icount company id and username are required")
	}
	baseURL := strings.TrimSpace(os.Getenv("ICOUNT_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.icount.co.il/api/v3.php"
	}
	rateMax := defaultRateMax
	if v := strings.TrimSpace(os.Getenv("ICOUNT_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateMax = n
		}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		companyId: companyId,
		username:  username,
		password:  password,
		http:      &http.Client{Timeout: requestTimeout},
		limiter:   newSlidingWindow(rateMax, time.Minute),
		logger:    logger,
	}, nil
}

func (c *Client) sessionCacheKey() string {
	return fmt.Sprintf("icount:session:%s:%s", c.companyId, c.username)
}

// Session returns the cached session id, logging in only when the cache is
// cold or expired. The redis copy survives process restarts; the
// in-process copy covers unconfigured redis.
func (c *Client) Session(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.session.Sid != "" && time.Now().Before(c.session.ExpiresAt) {
		sid := c.session.Sid
		c.mu.Unlock()
		return sid, nil
	}
	c.mu.Unlock()

	var cached cachedSession
	if ok, err := config.GetRedisObject(c.sessionCacheKey(), &cached); err == nil && ok {
		if cached.Sid != "" && time.Now().Before(cached.ExpiresAt) {
			c.mu.Lock()
			c.session = cached
			c.mu.Unlock()
			return cached.Sid, nil
		}
	}

	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}

	body, _ := json.Marshal(map[string]string{
		"cid":  c.companyId,
		"user": c.username,
		"pass": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("icount login error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Status bool   `json:"status"`
		Sid    string `json:"sid"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if !parsed.Status || parsed.Sid == "" {
		return "", fmt.Errorf("icount login rejected: %s", parsed.Reason)
	}

	session := cachedSession{Sid: parsed.Sid, ExpiresAt: time.Now().Add(sessionTTL)}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	if err := config.SetRedisObject(c.sessionCacheKey(), session, sessionTTL); err != nil && c.logger != nil {
		config.LogError(c.logger, "icount/client.go", "login", "session cache", nil, err)
	}
	return session.Sid, nil
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = cachedSession{}
	c.mu.Unlock()
	_ = config.RemoveRedisKey(c.sessionCacheKey())
}

// Do posts one API call, riding the session cache and the rate window. An
// authentication rejection clears the session and retries once with a
// fresh login; a second rejection is returned to the caller.
func (c *Client) Do(ctx context.Context, endpoint string, params map[string]any) (json.RawMessage, error) {
	raw, err := c.doOnce(ctx, endpoint, params)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, ErrAuthRejected) {
		return nil, err
	}

	c.clearSession()
	return c.doOnce(ctx, endpoint, params)
}

func (c *Client) doOnce(ctx context.Context, endpoint string, params map[string]any) (json.RawMessage, error) {
	sid, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{"sid": sid}
	for k, v := range params {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(endpoint, "/"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthRejected
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("icount api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var probe struct {
		Status *bool  `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Status != nil && !*probe.Status {
		if strings.Contains(strings.ToLower(probe.Reason), "session") || strings.Contains(strings.ToLower(probe.Reason), "auth") {
			return nil, ErrAuthRejected
		}
		return nil, fmt.Errorf("icount api rejected: %s", probe.Reason)
	}
	return raw, nil
}
