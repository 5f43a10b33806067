package security

import (
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/util"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	corsAllowHeaders  = "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With"
	corsAllowMethods  = "POST, OPTIONS, GET, PUT, DELETE, PATCH"
	corsExposeHeaders = "Retry-After"
	corsMaxAge        = "600"
)

// originPolicy Origin 白名单，包含 "*" 时放行所有来源
type originPolicy struct {
	any     bool
	origins map[string]struct{}
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{origins: make(map[string]struct{}, len(allowed))}
	for _, o := range allowed {
		o = normalizeOrigin(o)
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	return p
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	_, ok := p.origins[normalizeOrigin(origin)]
	return ok
}

// CORS 仅对白名单 Origin 回写 Allow-Origin 并允许携带凭证；非白名单的预检请求直接拒绝
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	policy := newOriginPolicy(cfg.AllowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := policy.allows(origin)

		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		if allowed {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		if origin != "" && !allowed {
			util.Error(c, http.StatusForbidden, "origin not allowed")
			c.Abort()
			return
		}
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}

var secureHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
}

// Secure 安全响应头；HSTS 只在 TLS 或反向代理声明 https 时下发
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, kv := range secureHeaders {
			c.Header(kv[0], kv[1])
		}
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter 每个客户端 IP 一个令牌桶，空闲条目在请求路径上顺带清理
type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

func newIPLimiter(cfg config.RateLimitConfig) *ipLimiter {
	burst := cfg.MaxRequests
	if burst <= 0 {
		burst = 600
	}
	window := time.Duration(cfg.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	idle := 3 * window
	if idle < time.Minute {
		idle = time.Minute
	}
	return &ipLimiter{
		visitors:  make(map[string]*visitor),
		every:     rate.Every(window / time.Duration(burst)),
		burst:     burst,
		idle:      idle,
		lastSweep: time.Now(),
	}
}

func (l *ipLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > time.Minute {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// wait 返回需要等待的时间，0 表示放行
func (l *ipLimiter) wait(ip string) time.Duration {
	now := time.Now()
	r := l.get(ip, now).ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	d := r.DelayFrom(now)
	if d > 0 {
		// 被拒绝的请求不消耗令牌
		r.CancelAt(now)
	}
	return d
}

// RateLimiter 按 IP 限流，超限返回 429 及 Retry-After（秒）
func RateLimiter(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiter := newIPLimiter(cfg)

	return func(c *gin.Context) {
		if d := limiter.wait(c.ClientIP()); d > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
			util.Error(c, http.StatusTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
