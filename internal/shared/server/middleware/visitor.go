package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	visitorIDKey = "visitorId"
	previewIDKey = "previewId"

	// VisitorHeader carries the visitor id for API clients that do not keep cookies.
	VisitorHeader = "X-Visitor-Id"
	// VisitorCookie is set on first contact so browsers keep their identity.
	VisitorCookie = "visitor_id"

	visitorCookieMaxAge = 365 * 24 * 60 * 60
)

var visitorIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// Visitor resolves an anonymous visitor identity from the header or cookie,
// issuing a new one when neither carries a usable value.
func Visitor(secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		id := strings.TrimSpace(c.GetHeader(VisitorHeader))
		if !visitorIDPattern.MatchString(id) {
			id = ""
			if cookie, err := c.Cookie(VisitorCookie); err == nil {
				if cookie = strings.TrimSpace(cookie); visitorIDPattern.MatchString(cookie) {
					id = cookie
				}
			}
		}
		if id == "" {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(VisitorCookie, id, visitorCookieMaxAge, "/", "", secureCookie, true)
		}

		c.Set(visitorIDKey, id)
		c.Writer.Header().Set(VisitorHeader, id)
		c.Next()
	}
}

// VisitorIDFromContext fetches the visitor ID set by the Visitor middleware.
func VisitorIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(visitorIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// SetPreviewID tags the request with a preview id for request logs.
func SetPreviewID(c *gin.Context, id string) {
	c.Set(previewIDKey, id)
}
