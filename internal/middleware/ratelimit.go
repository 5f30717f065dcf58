package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter 按客户端 IP 的令牌桶限流
// 闲置超过 idle 的 IP 会被清理
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
}

// NewRateLimiter 创建限流器；rps 为 0 表示不限流
func NewRateLimiter(rps float64, burst int, idle time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: cache.New(idle, idle),
	}
}

// Allow 判断该 IP 的请求是否放行
func (l *RateLimiter) Allow(ip string) bool {
	if l.limit <= 0 {
		return true
	}
	if x, found := l.limiters.Get(ip); found {
		l.limiters.SetDefault(ip, x) // 刷新过期时间
		return x.(*rate.Limiter).Allow()
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(ip, lim, cache.DefaultExpiration); err != nil {
		// 并发创建时使用已存在的那个
		if x, found := l.limiters.Get(ip); found {
			return x.(*rate.Limiter).Allow()
		}
	}
	return lim.Allow()
}

// Middleware 返回 gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}
