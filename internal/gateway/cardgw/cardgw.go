package cardgw

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paycore-next/internal/constants"
	"github.com/paycore-next/internal/gateway"
)

var (
	ErrConfigInvalid   = errors.New("cardgw config invalid")
	ErrRequestFailed   = errors.New("cardgw request failed")
	ErrResponseInvalid = errors.New("cardgw response invalid")
)

// 网关响应码
const (
	codeApproved = 0
	codeDeclined = 1
)

// Config 卡收单网关配置
type Config struct {
	EndpointURL string `json:"endpoint_url"` // 网关地址
	MerchantID  string `json:"merchant_id"`  // 商户号
	SecretKey   string `json:"secret_key"`   // 签名密钥
	APIPath     string `json:"api_path"`     // 接口路径
	TimeoutMS   int    `json:"timeout_ms"`   // 请求超时（毫秒）
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]string) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	if v, ok := raw["timeout_ms"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.TimeoutMS = n
		}
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验网关配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.EndpointURL) == "" {
		return fmt.Errorf("%w: endpoint_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return fmt.Errorf("%w: merchant_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	if c.APIPath == "" {
		c.APIPath = "/api/v1/charge"
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 10000
	}
}

// Adapter 卡收单网关适配器
type Adapter struct {
	cfg    *Config
	client *http.Client
}

// New 创建卡收单网关
func New(raw map[string]string) (*Adapter, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
	}, nil
}

// Name 网关名称
func (a *Adapter) Name() string {
	return constants.GatewayProviderCardGW
}

// Charge 发起扣款
func (a *Adapter) Charge(ctx context.Context, input gateway.ChargeInput) (*gateway.ChargeResult, error) {
	params := map[string]string{
		"merchant_id": a.cfg.MerchantID,
		"payment_no":  input.PaymentNo,
		"out_order":   input.OrderNo,
		"amount":      input.Amount,
		"currency":    input.Currency,
		"method":      input.Method,
		"card_last4":  input.CardLast4,
		"timestamp":   strconv.FormatInt(time.Now().Unix(), 10),
	}
	params["sign"] = signHMAC(buildSignContent(params), a.cfg.SecretKey)

	respBytes, err := a.postForm(ctx, buildEndpoint(a.cfg.EndpointURL, a.cfg.APIPath), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	var resp struct {
		Code      int    `json:"code"`
		Msg       string `json:"msg"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnavailable, ErrResponseInvalid)
	}

	switch resp.Code {
	case codeApproved:
		if strings.TrimSpace(resp.Reference) == "" {
			return nil, fmt.Errorf("%w: approved without reference", gateway.ErrUnavailable)
		}
		return &gateway.ChargeResult{
			Success:   true,
			Reference: strings.TrimSpace(resp.Reference),
			Raw:       raw,
		}, nil
	case codeDeclined:
		reason := strings.TrimSpace(resp.Msg)
		if reason == "" {
			reason = "declined by gateway"
		}
		return &gateway.ChargeResult{
			Success: false,
			Reason:  reason,
			Raw:     raw,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected code %d", gateway.ErrUnavailable, resp.Code)
	}
}

func (a *Adapter) postForm(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, ErrRequestFailed
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ErrRequestFailed
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func buildEndpoint(endpointURL, apiPath string) string {
	base := strings.TrimRight(strings.TrimSpace(endpointURL), "/")
	path := strings.TrimSpace(apiPath)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func buildSignContent(params map[string]string) string {
	var keys []string
	for k, v := range params {
		if v == "" || k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}
	return strings.Join(pairs, "&")
}

func signHMAC(content, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
