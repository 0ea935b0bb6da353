package httpapi

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/schoolworks/docvault/internal/document"
)

// The portal's session middleware establishes who the caller is; this
// service only reads the result. Service-to-service callers that carry
// no cookie can supply the same identity through headers instead.
const (
	sessionUserKey  = "user_id"
	sessionRoleKey  = "role"
	sessionNameKey  = "name"
	sessionEmailKey = "email"

	headerActorID     = "X-Actor-Id"
	headerActorRole   = "X-Actor-Role"
	headerViewerName  = "X-Viewer-Name"
	headerViewerEmail = "X-Viewer-Email"
)

type identity struct {
	ID    string
	Role  string
	Name  string
	Email string
}

func identityFrom(c *gin.Context) identity {
	id := identity{
		ID:    c.GetHeader(headerActorID),
		Role:  c.GetHeader(headerActorRole),
		Name:  c.GetHeader(headerViewerName),
		Email: c.GetHeader(headerViewerEmail),
	}
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return id
	}
	s := sessions.Default(c)
	if v, ok := s.Get(sessionUserKey).(string); ok && v != "" {
		id.ID = v
	}
	if v, ok := s.Get(sessionRoleKey).(string); ok && v != "" {
		id.Role = v
	}
	if v, ok := s.Get(sessionNameKey).(string); ok && v != "" {
		id.Name = v
	}
	if v, ok := s.Get(sessionEmailKey).(string); ok && v != "" {
		id.Email = v
	}
	return id
}

func (id identity) actor() document.Actor {
	return document.Actor{Role: id.Role, ID: id.ID}
}

func (id identity) viewer() *document.Viewer {
	if id.Name == "" && id.Email == "" && id.ID == "" {
		return nil
	}
	return &document.Viewer{Name: id.Name, Email: id.Email, Role: id.Role, ID: id.ID}
}

func (id identity) verifier() document.VerifierIdentity {
	return document.VerifierIdentity{Name: id.Name, Email: id.Email, Role: id.Role, ID: id.ID}
}
