package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/config"
)

// gremlinQuery 实体过滤查询结构
type gremlinQuery struct {
	TargetEntity struct {
		Label   string `json:"label"`
		Filters []any  `json:"filters"`
	} `json:"target_entity"`
	GraphFilters []any `json:"graph_filters"`
}

// newGremlinQuery 构造标准实体查询（label 为 <tenant>_<entity>，无过滤条件）
func newGremlinQuery(entityLabel string) gremlinQuery {
	q := gremlinQuery{}
	q.TargetEntity.Label = entityLabel
	q.TargetEntity.Filters = []any{}
	q.GraphFilters = []any{}
	return q
}

// Client 实体图谱（Entities-v2）API 客户端
// 通过 OAuth2 password grant 获取访问令牌；令牌过期（401）时重新认证并重试一次
type Client struct {
	httpClient *resty.Client
	cfg        *config.EntitiesConfig
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
}

// NewClient 创建实体图谱客户端
func NewClient(cfg *config.EntitiesConfig, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
	}
}

// authenticate 认证并缓存访问令牌
func (c *Client) authenticate(ctx context.Context) error {
	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "password",
			"username":      c.cfg.Username,
			"password":      c.cfg.Password,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
		}).
		SetResult(&tokenResp).
		Post(c.cfg.AuthURL)
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("authentication failed with status code %d: %s", resp.StatusCode(), resp.String())
	}
	if tokenResp.AccessToken == "" {
		return fmt.Errorf("authentication response has no access_token")
	}

	c.mu.Lock()
	c.accessToken = tokenResp.AccessToken
	c.mu.Unlock()
	return nil
}

// token 返回缓存的令牌，没有则先认证
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.accessToken
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}

	if err := c.authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	tok = c.accessToken
	c.mu.Unlock()
	return tok, nil
}

// getWithRetry 带 Bearer 认证的 GET；401 时重新认证并重试一次
func (c *Client) getWithRetry(ctx context.Context, url string, query map[string]string) ([]byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	do := func(tok string) (*resty.Response, error) {
		req := c.httpClient.R().
			SetContext(ctx).
			SetAuthToken(tok)
		if query != nil {
			req.SetQueryParams(query)
		}
		return req.Get(url)
	}

	resp, err := do(tok)
	if err != nil {
		return nil, fmt.Errorf("entities request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		// 令牌可能已过期，重新认证后重试一次
		c.logger.Debug("Entities token rejected, re-authenticating", zap.String("url", url))
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		tok = c.accessToken
		c.mu.Unlock()

		resp, err = do(tok)
		if err != nil {
			return nil, fmt.Errorf("entities request failed: %w", err)
		}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("entities request failed with status code %d: %s", resp.StatusCode(), resp.String())
	}
	return resp.Body(), nil
}

// FetchSchemaJSON 获取指定租户的 schema
func (c *Client) FetchSchemaJSON(ctx context.Context, tenant string) ([]byte, error) {
	url := fmt.Sprintf("%s/schema/%s/balloon-works/entityTypes", c.cfg.BaseURL, tenant)
	return c.getWithRetry(ctx, url, nil)
}

// GetEntities 查询实体并按 schema 投影
// entity 为实体标签（如 "gateway"），查询 label 为 <tenant>_<entity>
func (c *Client) GetEntities(ctx context.Context, tenant, project, entity string) ([]map[string]any, error) {
	schemaJSON, err := c.FetchSchemaJSON(ctx, tenant)
	if err != nil {
		return nil, err
	}
	schemaMap, err := ParseSchema(schemaJSON)
	if err != nil {
		return nil, err
	}

	queryJSON, err := json.Marshal(newGremlinQuery(tenant + "_" + entity))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gremlin query: %w", err)
	}

	url := fmt.Sprintf("%s/balloon-works/%s/%s/%s", c.cfg.BaseURL, tenant, project, entity)
	body, err := c.getWithRetry(ctx, url, map[string]string{"gremlin_query": string(queryJSON)})
	if err != nil {
		return nil, err
	}

	// schema 定义可能以裸实体名或 <tenant>_<entity> 为键
	schemaKey := entity
	if _, ok := schemaMap[schemaKey]; !ok {
		schemaKey = tenant + "_" + entity
	}
	results, err := MapResultsToSchema(body, schemaKey, schemaMap)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Loaded graph entities",
		zap.String("tenant", tenant),
		zap.String("entity", entity),
		zap.Int("count", len(results)),
	)
	return results, nil
}
