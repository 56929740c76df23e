package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/omnipool-labs/alm/internal/bridge"
	"github.com/omnipool-labs/alm/internal/chains"
	"github.com/omnipool-labs/alm/internal/config"
	"github.com/omnipool-labs/alm/internal/evaluator"
	"github.com/omnipool-labs/alm/internal/keeper"
	"github.com/omnipool-labs/alm/internal/logger"
	"github.com/omnipool-labs/alm/internal/orchestrator"
	"github.com/omnipool-labs/alm/internal/pause"
	"github.com/omnipool-labs/alm/internal/pool"
	"github.com/omnipool-labs/alm/internal/rangemanager"
	"github.com/omnipool-labs/alm/internal/state"
	"github.com/omnipool-labs/alm/internal/types"
	"github.com/omnipool-labs/alm/internal/web"
	"github.com/omnipool-labs/alm/internal/yieldregistry"
)

const (
	LOOP_INTERVAL = 5 * time.Minute
)

// main is the entry point for the ALM system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("ALM Core Logic Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Policy Parameters
	policyParams, err := state.LoadActivePolicyParameters(keeper.DEFAULT_POLICY_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active policy parameters, using defaults and saving.")
		defaultParams := config.DefaultPolicyParameters
		if _, err := state.SavePolicyParameters(defaultParams, keeper.DEFAULT_POLICY_CONFIG_NAME, keeper.DEFAULT_POLICY_CONFIG_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default policy parameters.")
		}
		policyParams = &defaultParams
	}
	log.Info().Msg("Policy parameters loaded successfully.")

	// --- 2. Adapter Initialization (with Safety Switch) ---
	var poolAdapter pool.Adapter
	var bridgeAdapter bridge.Adapter
	var simBridge *bridge.SimBridge
	almMode := os.Getenv("ALM_MODE")

	switch almMode {
	case "sim":
		log.Warn().Msg("Initializing ALM in SIM mode. All pool and bridge traffic is simulated in memory.")
		simBridge = bridge.NewSimBridge(5.0, 10)
		poolAdapter = pool.NewSimPool()
		bridgeAdapter = simBridge
	default:
		log.Fatal().Msg("ALM_MODE is not set to 'sim'. Halting to prevent accidental execution against live funds. Set ALM_MODE=sim to run.")
	}

	// --- 3. Assemble Decision Components with Dependency Injection ---
	log.Info().Msg("Creating ALM components with dependency injection...")

	pauseSwitch := &pause.Switch{}
	chainRegistry := chains.NewRegistry()
	yields := yieldregistry.NewRegistry(config.AuthorizedUpdater)
	eval := evaluator.New(yields, chainRegistry, bridgeAdapter, *policyParams)

	treasury := orchestrator.NewMemoryTreasury()
	seedTreasury(treasury)

	orch, err := orchestrator.New(orchestrator.Config{
		Treasury:         treasury,
		Bridge:           bridgeAdapter,
		Chains:           chainRegistry,
		Evaluator:        eval,
		Pause:            pauseSwitch,
		Params:           *policyParams,
		AuthorizedCaller: config.AuthorizedCaller,
		Admin:            config.AdminIdentity,
		Recorder:         &state.Recorder{},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migration orchestrator")
	}

	ranges, err := rangemanager.New(poolAdapter, pauseSwitch, policyParams.CooldownBlocks)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create range manager")
	}

	keeperInstance, err := keeper.New(keeper.Config{
		Ranges:    ranges,
		Pool:      poolAdapter,
		Registry:  yields,
		Evaluator: eval,
		Orch:      orch,
		Params:    *policyParams,
		Snapshots: &state.Saver{},
		Initiator: config.KeeperIdentity,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper instance")
	}

	log.Info().Msg("ALM components created successfully")

	// --- 4. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(web.Config{
		Port:            webPort,
		Ranges:          ranges,
		Orch:            orch,
		Registry:        yields,
		Chains:          chainRegistry,
		Evaluator:       eval,
		Pause:           pauseSwitch,
		FreshnessWindow: policyParams.FreshnessWindow,
		AdminToken:      config.AdminToken,
		HomeChainID:     types.ChainID(config.HomeChainID),
		YieldSink:       state.YieldLog{},
		History:         state.Archive{},
	})
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting ALM web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// In sim mode the bridge delivers completion callbacks on a timer,
	// standing in for the destination chain's relayer.
	if simBridge != nil {
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				if err := simBridge.SettleAll(orch); err != nil {
					log.Error().Err(err).Msg("Simulated bridge settlement failed")
				}
			}
		}()
	}

	// --- 5. Start Keeper Main Loop ---
	log.Info().Str("interval", LOOP_INTERVAL.String()).Msg("Starting keeper main loop")

	// Create context for graceful shutdown
	ctx := context.Background()

	// Start the keeper loop (this will run indefinitely)
	keeperInstance.RunLoop(ctx, LOOP_INTERVAL)
}

// seedTreasury pre-funds the keeper identity in simulation mode so escrow
// debits on migration creation do not bounce.
func seedTreasury(treasury *orchestrator.MemoryTreasury) {
	pairs := os.Getenv("ALM_SIM_FUNDED_PAIRS")
	if pairs == "" {
		return
	}
	seed := sdkmath.NewInt(1_000_000_000)
	for _, pair := range strings.Split(pairs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		treasury.Fund(config.KeeperIdentity, types.TokenPairID(pair), seed, seed)
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
