package challenge

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/oson-apps/notify-engine/internal/repository"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

// Template kinds, one per trigger family.
const (
	templateOTPChallenge   = "otp_challenge"
	templateNewAccount     = "new_account"
	templateForgotPassword = "forgot_password"
	templateResendCode     = "resend_code"
)

// TemplateCache fronts the provider-side template store with a small TTL
// cache. Lookup can be disabled entirely by config; rendering then always
// uses the caller's fixed-format fallback.
type TemplateCache struct {
	source  repository.TemplateSource
	cache   *gocache.Cache
	enabled bool
	log     *logger.Logger
}

func NewTemplateCache(source repository.TemplateSource, enabled bool, ttl time.Duration, log *logger.Logger) *TemplateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TemplateCache{
		source:  source,
		cache:   gocache.New(ttl, 2*ttl),
		enabled: enabled,
		log:     log,
	}
}

// Render resolves the template for kind/language and substitutes {name}
// placeholders. Returns "" when lookup is disabled, misses or fails; callers
// supply their own fallback text.
func (t *TemplateCache) Render(ctx context.Context, kind, language string, vars map[string]string) string {
	if !t.enabled || t.source == nil {
		return ""
	}
	if language == "" {
		language = "default"
	}

	key := kind + "/" + language
	if cached, ok := t.cache.Get(key); ok {
		return substitute(cached.(string), vars)
	}

	body, found, err := t.source.Lookup(ctx, kind, language)
	if err != nil {
		t.log.Error(err, "template lookup failed", "kind", kind)
		return ""
	}
	if !found {
		return ""
	}

	t.cache.SetDefault(key, body)
	return substitute(body, vars)
}

func substitute(body string, vars map[string]string) string {
	for name, value := range vars {
		body = strings.ReplaceAll(body, "{"+name+"}", value)
	}
	return body
}
