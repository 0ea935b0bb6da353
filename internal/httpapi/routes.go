package httpapi

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes attaches the document subsystem's routes.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.healthCheck)

	api := r.Group("/api")

	// Document routes
	api.POST("/documents", h.uploadDocument)
	api.GET("/documents", h.listDocuments)
	api.GET("/documents/:id", h.getDocument)
	api.GET("/documents/:id/download", h.downloadDocument)
	api.PATCH("/documents/:id/status", h.updateDocumentStatus)
	api.DELETE("/documents/:id", h.deleteDocument)
	api.GET("/documents/:id/logs", h.listVerificationLog)

	// Verification routes
	api.POST("/verify", h.verifyByReference)
	api.POST("/verify/upload", h.verifyByUpload)
}
