package main

import (
	"log"
	"os"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/schoolworks/docvault/internal/document"
	"github.com/schoolworks/docvault/internal/httpapi"
	"github.com/schoolworks/docvault/internal/watermark"
)

func main() {
	addr := envOrDefault("DOCVAULT_ADDR", ":8080")
	dbPath := envOrDefault("DOCVAULT_DB", "docvault.db")
	storageDir := envOrDefault("DOCVAULT_STORAGE_DIR", "issued_documents")

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		log.Fatalf("failed to create storage directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	store := document.NewStore(db)
	if err := store.Migrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	resolver := document.NewResolver(store)
	downloads := document.NewDownloadPipeline(store, watermark.PDFStamper{})
	handler := httpapi.NewHandler(store, resolver, downloads, storageDir)

	r := gin.Default()

	// The portal's auth layer writes the caller identity into this
	// session; the service only reads it.
	sessionStore := cookie.NewStore([]byte(os.Getenv("SECRET_KEY")))
	r.Use(sessions.Sessions("portal_session", sessionStore))

	httpapi.RegisterRoutes(r, handler)

	if err := r.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
