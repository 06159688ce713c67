package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/fhelabs/fhegas/internal/costs"
	"github.com/fhelabs/fhegas/internal/model"
	"github.com/fhelabs/fhegas/server/internal/auth"
	"github.com/fhelabs/fhegas/server/internal/database"
	"github.com/fhelabs/fhegas/server/internal/handlers"
	"github.com/fhelabs/fhegas/server/internal/middleware"
)

func main() {
	// Load configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "./fhegas.db")
	costTablePath := os.Getenv("COST_TABLE")

	// Open database
	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Optional server-wide cost table, layered between the embedded
	// defaults and each user's overrides
	var baseTable []model.OperationCost
	if costTablePath != "" {
		table, err := costs.LoadTable(costTablePath)
		if err != nil {
			log.Fatalf("Failed to load cost table %s: %v", costTablePath, err)
		}
		baseTable = table.Operations
		log.Printf("Loaded %d cost overrides from %s", len(baseTable), costTablePath)
	}

	// Setup session manager with SQLite store
	sessionMgr := scs.New()
	sessionMgr.Store = sqlite3store.New(db.DB)
	sessionMgr.Lifetime = 7 * 24 * time.Hour
	sessionMgr.Cookie.Secure = false // Set to true in production with HTTPS
	sessionMgr.Cookie.SameSite = http.SameSiteLaxMode

	// Create handlers
	recorder := handlers.NewEventRecorder(db, 2*time.Second)
	h := handlers.New(db, sessionMgr, recorder, baseTable)
	authMiddleware := auth.NewMiddleware(db, sessionMgr)

	// Credential endpoints get a tight per-IP limit
	loginLimiter := middleware.NewIPRateLimiter(1, 5)

	// Setup routes
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("/health", h.Health)
	mux.Handle("/login", loginLimiter.LimitFunc(h.Login))
	mux.Handle("/register", loginLimiter.LimitFunc(h.Register))

	// Protected routes (session-based)
	mux.Handle("/logout", authMiddleware.RequireAuth(http.HandlerFunc(h.Logout)))
	mux.Handle("/api/key/rotate", authMiddleware.RequireAuth(http.HandlerFunc(h.RotateAPIKey)))

	// API routes (API key-based)
	mux.Handle("/api/costs", authMiddleware.RequireAPIKey(http.HandlerFunc(h.Costs)))
	mux.Handle("/api/estimate", authMiddleware.RequireAPIKey(http.HandlerFunc(h.Estimate)))
	mux.Handle("/api/analyze", authMiddleware.RequireAPIKey(http.HandlerFunc(h.Analyze)))
	mux.Handle("/api/analysis", authMiddleware.RequireAPIKey(http.HandlerFunc(h.Analysis)))
	mux.Handle("/api/subjects", authMiddleware.RequireAPIKey(http.HandlerFunc(h.Subjects)))

	// Wrap with session and security-header middleware
	handler := middleware.SecurityHeaders(sessionMgr.LoadAndSave(mux))

	// Start server
	addr := ":" + port
	log.Printf("Starting fhegas-server on %s", addr)
	log.Printf("Database: %s", dbPath)

	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
