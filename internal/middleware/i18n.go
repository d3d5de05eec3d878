// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civilaviation/fop-backend/internal/i18n"
)

// I18nMiddleware picks the first Accept-Language entry with a catalogue,
// falling back to defaultLang.
func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return func(c *gin.Context) {
		c.Set("lang", negotiate(c.GetHeader("Accept-Language"), defaultLang))
		c.Next()
	}
}

// negotiate handles values like "nl-NL,nl;q=0.9,en;q=0.8" in listed order.
func negotiate(header, defaultLang string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if tag == "" || tag == "*" {
			continue
		}
		tag = strings.ToLower(strings.ReplaceAll(tag, "_", "-"))
		if i18n.Supports(tag) {
			return tag
		}
		if base, _, found := strings.Cut(tag, "-"); found && i18n.Supports(base) {
			return base
		}
	}
	return defaultLang
}
