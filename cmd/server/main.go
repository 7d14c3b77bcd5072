package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quentel/formulaire/internal/api"
	"github.com/quentel/formulaire/internal/db"
	"github.com/quentel/formulaire/internal/services"
)

func main() {
	addr := envOr("FORMULAIRE_ADDR", ":8080")
	dbPath := envOr("FORMULAIRE_DB", "formulaire.db")
	migrationsDir := os.Getenv("FORMULAIRE_MIGRATIONS")

	sqlDB, err := sql.Open("sqlite3", "file:"+dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("close sqlite: %v", cerr)
		}
	}()

	if err := db.RunMigrations(sqlDB, migrationsDir); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	store, err := db.NewSQLiteStore(sqlDB)
	if err != nil {
		log.Fatalf("init sqlite store: %v", err)
	}

	agg := services.NewAggregator(store)
	forms := services.NewFormService(store, agg)
	submissions := services.NewSubmissionService(store, agg)

	mux := http.NewServeMux()
	api.NewRouter(forms, submissions).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "name": "Formulaire API"})
	})

	log.Printf("Formulaire server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// envOr returns the environment variable value for key, or fallback if empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
