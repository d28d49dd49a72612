package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"threatexplorer/config"
	"threatexplorer/db"
	"threatexplorer/handlers"
	"threatexplorer/services"
	"threatexplorer/services/agent"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

func main() {
	cfg := config.Load()

	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	store, err := db.NewAttackStore(cfg.DatasetPath)
	if err != nil {
		log.Fatalf("Failed to initialize attacks database: %v", err)
	}
	defer store.Close()

	agentService, err := agent.NewAgent(agent.FactoryConfig{
		AgentType:     cfg.AgentType,
		APIKey:        cfg.OpenAIAPIKey,
		Model:         cfg.Model,
		MaxIterations: cfg.MaxIterations,
		RowLimit:      cfg.QueryRowLimit,
		ChunkSize:     cfg.StreamChunkSize,
	}, store)
	if err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}

	convLogService := services.NewConversationLogService(cfg.LogsDir)

	chatHandler := handlers.NewChatHandler(agentService, convLogService)
	datasetHandler := handlers.NewDatasetHandler(store)

	router := mux.NewRouter()

	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(jsonMiddleware)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("OPTIONS")

	chatHandler.RegisterRoutes(router)
	datasetHandler.RegisterRoutes(router)

	router.HandleFunc("/", rootHandler(agentService.AgentType(), cfg.Model)).Methods("GET")
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	addr := cfg.Host + ":" + cfg.Port
	fmt.Printf("Server starting on %s (agent=%s, model=%s)\n", addr, cfg.AgentType, cfg.Model)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func corsMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowAll := lo.Contains(allowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if lo.Contains(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Set("Access-Control-Expose-Headers", "*")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func rootHandler(agentType, model string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"message":    "Welcome to Threat Explorer API",
			"agent_type": agentType,
			"model":      model,
		})
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}
