// Package fiscal implements the HTTP client for the external fiscal platform.
package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/orderstack/fulfill/internal/clock"
	"github.com/orderstack/fulfill/internal/config"
	fiscaldomain "github.com/orderstack/fulfill/internal/providers/fiscal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const providerName = "fiscal"

type ClientParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
}

type client struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	tokenMargin time.Duration

	http  *http.Client
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clk   clock.Clock

	mu          sync.Mutex
	token       string
	secretKey   string
	tokenExpiry time.Time
}

func NewClient(p ClientParams) fiscaldomain.Client {
	return &client{
		baseURL:     p.Config.Fiscal.BaseURL,
		apiKey:      p.Config.Fiscal.APIKey,
		apiSecret:   p.Config.Fiscal.APISecret,
		tokenMargin: p.Config.Fiscal.TokenMargin,
		http:        &http.Client{Timeout: p.Config.Fiscal.RequestTimeout},
		db:          p.DB,
		log:         p.Log.Named("fiscal.client"),
		genID:       p.GenID,
		clk:         p.Clock,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	SecretKey   string `json:"secret_key"`
	ExpiresIn   int64  `json:"expires_in"`
}

type taxpayerResponse struct {
	Registered bool `json:"registered"`
}

type batchResponse struct {
	Results []fiscaldomain.DocumentResult `json:"results"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// accessToken returns a cached bearer token, refreshing it with a safety
// margin before its declared expiry.
func (c *client) accessToken(ctx context.Context) (string, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return "", fiscaldomain.ErrMissingCredentials
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.clk.Now().Before(c.tokenExpiry.Add(-c.tokenMargin)) {
		return c.token, nil
	}

	body, status, err := c.call(ctx, "auth", http.MethodPost, "/v1/auth/token", map[string]string{
		"api_key":    c.apiKey,
		"api_secret": c.apiSecret,
	}, "")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fiscaldomain.ErrMissingCredentials
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", fiscaldomain.ErrMissingCredentials
	}

	c.token = tok.AccessToken
	c.secretKey = tok.SecretKey
	c.tokenExpiry = c.clk.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *client) CheckTaxpayer(ctx context.Context, taxID string) (bool, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return false, err
	}

	body, status, err := c.call(ctx, "taxpayer_check", http.MethodGet, "/v1/taxpayers/"+taxID, nil, token)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, gatewayError(status, body)
	}

	var resp taxpayerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, &fiscaldomain.GatewayError{Message: "malformed taxpayer response"}
	}
	return resp.Registered, nil
}

func (c *client) UpsertParty(ctx context.Context, party fiscaldomain.Party) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	body, status, err := c.call(ctx, "party_upsert", http.MethodPost, "/v1/parties", party, token)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict:
		return fiscaldomain.ErrPartyExists
	default:
		return gatewayError(status, body)
	}
}

func (c *client) IssueDocument(ctx context.Context, req fiscaldomain.DocumentRequest) (fiscaldomain.DocumentResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return fiscaldomain.DocumentResult{}, err
	}

	body, status, err := c.call(ctx, "document_issue", http.MethodPost, "/v1/documents", req, token)
	if err != nil {
		return fiscaldomain.DocumentResult{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fiscaldomain.DocumentResult{}, gatewayError(status, body)
	}

	var result fiscaldomain.DocumentResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fiscaldomain.DocumentResult{}, &fiscaldomain.GatewayError{Message: "malformed document response"}
	}
	return result, nil
}

func (c *client) IssueBatch(ctx context.Context, reqs []fiscaldomain.DocumentRequest) ([]fiscaldomain.DocumentResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, status, err := c.call(ctx, "document_batch", http.MethodPost, "/v1/documents/batch", map[string]any{
		"documents": reqs,
	}, token)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, gatewayError(status, body)
	}

	var resp batchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &fiscaldomain.GatewayError{Message: "malformed batch response"}
	}
	return resp.Results, nil
}

// call performs one HTTP exchange and appends a CallLog row regardless of
// outcome.
func (c *client) call(ctx context.Context, callType, method, path string, payload any, token string) ([]byte, int, error) {
	var reqBody []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reqBody = encoded
	}

	started := time.Now()
	respBody, status, callErr := c.send(ctx, method, path, reqBody, token)
	duration := time.Since(started)

	entry := fiscaldomain.CallLog{
		ID:         c.genID.Generate(),
		Provider:   providerName,
		CallType:   callType,
		Endpoint:   path,
		Method:     method,
		Request:    redactCredentials(string(reqBody), callType),
		Response:   string(respBody),
		StatusCode: status,
		Success:    callErr == nil && status < http.StatusBadRequest,
		DurationMS: duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if callErr != nil {
		entry.ErrorText = callErr.Error()
	}
	if err := c.db.WithContext(ctx).Create(&entry).Error; err != nil {
		c.log.Warn("failed to append fiscal call log",
			zap.String("call_type", callType),
			zap.Error(err),
		)
	}

	if callErr != nil {
		return nil, status, &fiscaldomain.GatewayError{Message: callErr.Error()}
	}
	return respBody, status, nil
}

func (c *client) send(ctx context.Context, method, path string, body []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

func gatewayError(status int, body []byte) error {
	var resp errorResponse
	message := ""
	if err := json.Unmarshal(body, &resp); err == nil {
		message = strings.TrimSpace(resp.Message)
	}
	if message == "" {
		message = "request failed"
	}
	return &fiscaldomain.GatewayError{StatusCode: status, Message: message}
}

// redactCredentials keeps secrets out of the audit trail.
func redactCredentials(request, callType string) string {
	if callType == "auth" {
		return `{"api_key":"[redacted]","api_secret":"[redacted]"}`
	}
	return request
}
