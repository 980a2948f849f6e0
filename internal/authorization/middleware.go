package authorization

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderActor = "X-Actor"

	contextSessionKey = "authorization.session"
)

// Session is the permission view of one request.
type Session struct {
	svc   *Service
	actor string
}

func (s Session) CurrentUser() string {
	return s.actor
}

func (s Session) HasPermission(object, action string) bool {
	if s.svc == nil {
		return false
	}
	return s.svc.Authorize(context.Background(), s.actor, object, action) == nil
}

func (s *Service) Session(actor string) Session {
	return Session{svc: s, actor: s.resolveActor(actor)}
}

// resolveActor maps the header value to an actor. Without a proxy every
// caller is the local actor.
func (s *Service) resolveActor(raw string) string {
	if s.Open() {
		return LocalActor
	}
	return strings.TrimSpace(raw)
}

// Middleware rejects the request unless the caller may perform action on object.
func (s *Service) Middleware(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := s.Session(c.GetHeader(HeaderActor))
		if session.CurrentUser() == "" {
			_ = c.Error(ErrUnauthorized)
			c.Abort()
			return
		}
		if err := s.Authorize(c.Request.Context(), session.CurrentUser(), object, action); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(contextSessionKey, session)
		c.Next()
	}
}

// FromContext returns the session stored by Middleware.
func FromContext(c *gin.Context) (Session, bool) {
	v, ok := c.Get(contextSessionKey)
	if !ok {
		return Session{}, false
	}
	session, ok := v.(Session)
	return session, ok
}

// CurrentUser is a shorthand for handlers recording who did something.
func CurrentUser(c *gin.Context) string {
	session, ok := FromContext(c)
	if !ok {
		return ""
	}
	return session.CurrentUser()
}
