package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/omnipool-labs/alm/internal/chains"
	"github.com/omnipool-labs/alm/internal/evaluator"
	"github.com/omnipool-labs/alm/internal/logger"
	"github.com/omnipool-labs/alm/internal/metrics"
	"github.com/omnipool-labs/alm/internal/orchestrator"
	"github.com/omnipool-labs/alm/internal/pause"
	"github.com/omnipool-labs/alm/internal/rangemanager"
	"github.com/omnipool-labs/alm/internal/types"
	"github.com/omnipool-labs/alm/internal/yieldregistry"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the query and administrative HTTP surface.
type WebServer struct {
	router *mux.Router
	port   string

	ranges    *rangemanager.Manager
	orch      *orchestrator.Orchestrator
	registry  *yieldregistry.Registry
	chains    *chains.Registry
	evaluator *evaluator.Evaluator
	pause     *pause.Switch

	freshnessWindow time.Duration
	adminToken      string
	homeChainID     types.ChainID
	yieldSink       YieldSink
	history         History
}

// YieldSink receives accepted yield observations for audit logging. Sink
// failures never reject the update.
type YieldSink interface {
	InsertYieldObservation(rec types.YieldRecord) error
}

// History reads persisted records for the audit endpoints. The in-memory
// components stay the decision source; these queries serve operators looking
// at past cycles and migrations.
type History interface {
	GetMigration(id string) (*types.Migration, error)
	GetRecentMigrations(limit int) ([]types.Migration, error)
	GetRecentCycles(limit int) ([]types.CycleSnapshot, error)
	GetRecentYieldObservations(pair types.TokenPairID, limit int) ([]types.YieldRecord, error)
}

// Config holds the dependencies for creating a WebServer.
type Config struct {
	Port            string
	Ranges          *rangemanager.Manager
	Orch            *orchestrator.Orchestrator
	Registry        *yieldregistry.Registry
	Chains          *chains.Registry
	Evaluator       *evaluator.Evaluator
	Pause           *pause.Switch
	FreshnessWindow time.Duration
	AdminToken      string
	HomeChainID     types.ChainID
	YieldSink       YieldSink // optional
	History         History   // optional
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:          mux.NewRouter(),
		port:            port,
		ranges:          cfg.Ranges,
		orch:            cfg.Orch,
		registry:        cfg.Registry,
		chains:          cfg.Chains,
		evaluator:       cfg.Evaluator,
		pause:           cfg.Pause,
		freshnessWindow: cfg.FreshnessWindow,
		adminToken:      cfg.AdminToken,
		homeChainID:     cfg.HomeChainID,
		yieldSink:       cfg.YieldSink,
		history:         cfg.History,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/positions", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/positions/{poolId}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/migrations", ws.handleGetMigrations).Methods("GET")
	api.HandleFunc("/migrations/{id}", ws.handleGetMigration).Methods("GET")
	api.HandleFunc("/yields", ws.handleUpdateYield).Methods("POST")
	api.HandleFunc("/yields/{pair}", ws.handleGetYieldComparison).Methods("GET")
	api.HandleFunc("/estimate", ws.handleEstimate).Methods("GET")
	api.HandleFunc("/chains", ws.handleGetChains).Methods("GET")
	api.HandleFunc("/history/migrations", ws.handleMigrationHistory).Methods("GET")
	api.HandleFunc("/history/cycles", ws.handleCycleHistory).Methods("GET")
	api.HandleFunc("/history/yields/{pair}", ws.handleYieldHistory).Methods("GET")

	admin := ws.router.PathPrefix("/admin").Subrouter()
	admin.Use(ws.adminAuthMiddleware)
	admin.HandleFunc("/pause", ws.handlePause).Methods("POST")
	admin.HandleFunc("/resume", ws.handleResume).Methods("POST")
	admin.HandleFunc("/chains", ws.handleRegisterChain).Methods("POST")
	admin.HandleFunc("/chains/{chainId}", ws.handleDeregisterChain).Methods("DELETE")
	admin.HandleFunc("/migration-bounds", ws.handleSetMigrationBounds).Methods("POST")
	admin.HandleFunc("/positions", ws.handleTrackPosition).Methods("POST")
	admin.HandleFunc("/positions/{poolId}", ws.handleDeactivatePosition).Methods("DELETE")
	admin.HandleFunc("/migrations/{id}/cancel", ws.handleCancelMigration).Methods("POST")
	admin.HandleFunc("/roles/updater", ws.handleSetUpdaterRole).Methods("POST")
	admin.HandleFunc("/roles/caller", ws.handleSetCallerRole).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"paused":    ws.pause.Paused(),
		"component": map[string]interface{}{
			"name":    "alm-autonomous-liquidity-manager",
			"version": "1.0.0",
		},
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions := ws.ranges.Positions()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	poolID, err := strconv.ParseUint(vars["poolId"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}

	position, err := ws.ranges.Position(types.PoolID(poolID))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, position)
}

func (ws *WebServer) handleGetMigrations(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)

	migrations := ws.orch.List()
	if len(migrations) > limit {
		migrations = migrations[:limit]
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"migrations": migrations,
		"count":      len(migrations),
		"limit":      limit,
	})
}

func (ws *WebServer) handleGetMigration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	migration, err := ws.orch.Get(vars["id"])
	if err != nil {
		// Restarted processes lose in-memory records; fall back to the
		// persisted copy.
		if ws.history != nil {
			if stored, histErr := ws.history.GetMigration(vars["id"]); histErr == nil {
				ws.writeJSONResponse(w, http.StatusOK, stored)
				return
			}
		}
		ws.writeErrorResponse(w, http.StatusNotFound, "Migration not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, migration)
}

// parseLimit reads the limit query parameter, clamped to 1..100.
func parseLimit(r *http.Request, fallback int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > 100 {
		return fallback
	}
	return parsed
}

func (ws *WebServer) handleMigrationHistory(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "History storage not configured")
		return
	}
	migrations, err := ws.history.GetRecentMigrations(parseLimit(r, 20))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to read migration history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read migration history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"migrations": migrations,
		"count":      len(migrations),
	})
}

func (ws *WebServer) handleCycleHistory(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "History storage not configured")
		return
	}
	cycles, err := ws.history.GetRecentCycles(parseLimit(r, 20))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to read cycle history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read cycle history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
	})
}

func (ws *WebServer) handleYieldHistory(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "History storage not configured")
		return
	}
	vars := mux.Vars(r)
	pair := types.TokenPairID(vars["pair"])
	observations, err := ws.history.GetRecentYieldObservations(pair, parseLimit(r, 50))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to read yield history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read yield history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pair":         pair,
		"observations": observations,
		"count":        len(observations),
	})
}

// handleUpdateYield accepts a yield observation from the authorized updater.
// The caller identity travels in the X-Caller-Identity header and is checked
// by the registry, not here.
func (ws *WebServer) handleUpdateYield(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChainID  uint64  `json:"chain_id"`
		Pair     string  `json:"pair"`
		APYBps   int64   `json:"apy_bps"`
		TVLUSD   float64 `json:"tvl_usd"`
		GasPrice float64 `json:"gas_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid yield observation payload")
		return
	}

	caller := r.Header.Get("X-Caller-Identity")
	now := time.Now()
	err := ws.registry.Update(caller, types.ChainID(payload.ChainID), types.TokenPairID(payload.Pair), payload.APYBps, payload.TVLUSD, payload.GasPrice, now)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusForbidden, err.Error())
		return
	}

	if ws.yieldSink != nil {
		rec := types.YieldRecord{
			ChainID:     types.ChainID(payload.ChainID),
			TokenPairID: types.TokenPairID(payload.Pair),
			APYBps:      payload.APYBps,
			TVLUSD:      payload.TVLUSD,
			GasPrice:    payload.GasPrice,
			ObservedAt:  now,
		}
		if sinkErr := ws.yieldSink.InsertYieldObservation(rec); sinkErr != nil {
			webLogger.Error().Err(sinkErr).Msg("Failed to log yield observation")
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"accepted": true})
}

func (ws *WebServer) handleGetYieldComparison(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pair := types.TokenPairID(vars["pair"])

	entries := ws.registry.Comparison(pair, ws.freshnessWindow, time.Now())
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pair":    pair,
		"entries": entries,
		"count":   len(entries),
	})
}

// handleEstimate runs the profitability evaluation without creating a
// migration.
func (ws *WebServer) handleEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromChain, err1 := strconv.ParseUint(q.Get("from"), 10, 64)
	toChain, err2 := strconv.ParseUint(q.Get("to"), 10, 64)
	totalValue, err3 := strconv.ParseFloat(q.Get("value"), 64)
	pair := types.TokenPairID(q.Get("pair"))
	if err1 != nil || err2 != nil || err3 != nil || pair == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Required query parameters: from, to, pair, value")
		return
	}

	verdict := ws.evaluator.Evaluate(types.ChainID(fromChain), types.ChainID(toChain), pair, totalValue, time.Now())
	ws.writeJSONResponse(w, http.StatusOK, verdict)
}

func (ws *WebServer) handleGetChains(w http.ResponseWriter, r *http.Request) {
	links := ws.chains.List()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"chains": links,
		"count":  len(links),
	})
}

func (ws *WebServer) handlePause(w http.ResponseWriter, r *http.Request) {
	ws.pause.Pause()
	webLogger.Warn().Msg("System paused via admin API")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"paused": true})
}

func (ws *WebServer) handleResume(w http.ResponseWriter, r *http.Request) {
	ws.pause.Resume()
	webLogger.Warn().Msg("System resumed via admin API")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"paused": false})
}

func (ws *WebServer) handleRegisterChain(w http.ResponseWriter, r *http.Request) {
	var link types.ChainLink
	if err := json.NewDecoder(r.Body).Decode(&link); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid chain configuration payload")
		return
	}
	if err := ws.chains.Register(link); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, link)
}

func (ws *WebServer) handleDeregisterChain(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chainID, err := strconv.ParseUint(vars["chainId"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid chain ID")
		return
	}
	if err := ws.chains.Deregister(types.ChainID(chainID)); err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"deregistered": chainID})
}

func (ws *WebServer) handleSetMigrationBounds(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MinUSD float64 `json:"min_usd"`
		MaxUSD float64 `json:"max_usd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid bounds payload")
		return
	}
	if err := ws.orch.SetMigrationBounds(payload.MinUSD, payload.MaxUSD); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, payload)
}

func (ws *WebServer) handleTrackPosition(w http.ResponseWriter, r *http.Request) {
	var position types.Position
	if err := json.NewDecoder(r.Body).Decode(&position); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position payload")
		return
	}
	// Positions without an explicit chain live on the configured home chain.
	if position.ChainID == 0 {
		position.ChainID = ws.homeChainID
	}
	if err := ws.ranges.Track(position); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, position)
}

func (ws *WebServer) handleDeactivatePosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	poolID, err := strconv.ParseUint(vars["poolId"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	if err := ws.ranges.Deactivate(types.PoolID(poolID)); err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"deactivated": poolID})
}

func (ws *WebServer) handleCancelMigration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	caller := r.Header.Get("X-Caller-Identity")
	if err := ws.orch.Cancel(caller, vars["id"]); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"cancelled": vars["id"]})
}

func (ws *WebServer) handleSetUpdaterRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := ws.decodeIdentity(w, r)
	if !ok {
		return
	}
	ws.registry.SetAuthorizedUpdater(identity)
	webLogger.Warn().Str("identity", identity).Msg("Authorized yield updater rotated")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"updater": identity})
}

func (ws *WebServer) handleSetCallerRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := ws.decodeIdentity(w, r)
	if !ok {
		return
	}
	ws.orch.SetAuthorizedCaller(identity)
	webLogger.Warn().Str("identity", identity).Msg("Authorized completion caller rotated")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"caller": identity})
}

func (ws *WebServer) decodeIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Identity == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Required field: identity")
		return "", false
	}
	return payload.Identity, true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// adminAuthMiddleware rejects admin requests without the configured token.
func (ws *WebServer) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ws.adminToken == "" || r.Header.Get("X-Admin-Token") != ws.adminToken {
			ws.writeErrorResponse(w, http.StatusUnauthorized, "Admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token, X-Caller-Identity")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
