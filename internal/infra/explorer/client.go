package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"coinsub.com/pkg/ratelimit"
)

// ErrNotFound 404：地址没有任何历史，不算失败，换下一个源
var ErrNotFound = errors.New("explorer: not found")

// Client 所有外部数据源共用的取数通道
// 每个源一个熔断器：连续失败的源在一段时间内直接跳过，
// 不用每轮 sweep 都等它超时；按 host 限流防止被封
type Client struct {
	http    *http.Client
	limiter *ratelimit.Store

	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

func NewClient() *Client {
	return &Client{
		http: &http.Client{
			// 单次请求的超时由调用方 ctx 控制，这里只兜底
			Timeout: 30 * time.Second,
		},
		// 对单个 host 2 rps 足够：一轮 sweep 对同一家最多几十个地址
		limiter:  ratelimit.NewStore(rate.Limit(2), 4, 10*time.Minute),
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// breaker 每个源名字一个熔断器，懒初始化
// sweep 的 worker 池和 HTTP 接口会并发打同一个 Client，必须加锁
func (c *Client) breaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.RLock()
	cb, ok := c.breakers[name]
	c.mu.RUnlock()
	if ok {
		return cb
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[name]; ok {
		return cb
	}
	cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    name,
		Timeout: 60 * time.Second, // Open 一分钟后放探测请求
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[name] = cb
	return cb
}

// Get 拉取一个 URL 的响应体
// 404 返回 ErrNotFound；其他非 2xx、超时、连接错误都返回普通 error，
// 调用方一律当作"跳过这个源"
func (c *Client) Get(ctx context.Context, sourceName, rawURL string) ([]byte, error) {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	if err := c.limiter.Wait(ctx, host); err != nil {
		return nil, err
	}

	return c.breaker(sourceName).Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// 404 不触发熔断：地址没历史是正常回答
			return nil, nil
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("http %d from %s", resp.StatusCode, sourceName)
		}

		// 响应体限制 4MB，防止恶意源把内存打爆
		return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	})
}

// GetOrNotFound 同 Get，但把 404 区分出来
func (c *Client) GetOrNotFound(ctx context.Context, sourceName, rawURL string) ([]byte, error) {
	body, err := c.Get(ctx, sourceName, rawURL)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, ErrNotFound
	}
	return body, nil
}
