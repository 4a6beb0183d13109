package cors

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tkd-admin-api/pkg/config"
)

type policy struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool
	allowHeads  string
	allowMeths  string
	expose      string
	maxAge      string
}

func newPolicy(cfg config.CORSConfig) policy {
	p := policy{
		origins:     make(map[string]struct{}, len(cfg.AllowedOrigins)),
		credentials: cfg.AllowCredentials,
		allowHeads:  strings.Join(cfg.AllowedHeaders, ", "),
		allowMeths:  strings.ToUpper(strings.Join(cfg.AllowedMethods, ", ")),
		expose:      strings.Join(cfg.ExposedHeaders, ", "),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[normalizeOrigin(origin)] = struct{}{}
	}
	if len(p.origins) == 0 {
		p.anyOrigin = true
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}
	return p
}

func (p policy) allows(origin string) bool {
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[normalizeOrigin(origin)]
	return ok
}

// New builds the CORS middleware from configuration. An empty origin list or "*" admits every origin.
// Preflight requests are answered with 204 and never reach the router.
func New(cfg config.CORSConfig) gin.HandlerFunc {
	p := newPolicy(cfg)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && p.allows(origin):
			// Browsers reject "*" on credentialed requests, so the origin is echoed.
			h.Set("Access-Control-Allow-Origin", origin)
			if p.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if p.expose != "" {
				h.Set("Access-Control-Expose-Headers", p.expose)
			}
		case origin == "" && p.anyOrigin:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		if p.allowMeths != "" {
			h.Set("Access-Control-Allow-Methods", p.allowMeths)
		}
		if p.allowHeads != "" {
			h.Set("Access-Control-Allow-Headers", p.allowHeads)
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
