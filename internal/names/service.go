package names

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Service 查询股票名称；查不到时返回空串和 nil。
type Service interface {
	FetchName(ctx context.Context, stockCode, marketID string) (string, error)
}

// HTTPService 调用外部名称服务：
// GET {base}/name?stockcode=&marketId= → {"code":"0","message":"success","data":{"stockName":"..."}}
type HTTPService struct {
	base   string
	client *http.Client
}

func NewHTTPService(baseURL string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPService{
		base:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPService) FetchName(ctx context.Context, stockCode, marketID string) (string, error) {
	q := url.Values{}
	q.Set("stockcode", stockCode)
	q.Set("marketId", marketID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/name?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("name service: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("name service: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("name service: invalid json")
	}
	doc := gjson.ParseBytes(body)
	if code := doc.Get("code").String(); code != "" && code != "0" {
		return "", fmt.Errorf("name service: code=%s message=%s", code, doc.Get("message").String())
	}
	return strings.TrimSpace(doc.Get("data.stockName").String()), nil
}

// Placeholder 是所有来源都查不到时的兜底名称。
func Placeholder(stockCode, marketID string) string {
	return "NAME-" + strings.TrimSpace(stockCode) + "-" + strings.TrimSpace(marketID)
}
