package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// HomeChainID is the chain newly tracked positions are assigned to when
	// the admin API receives no explicit chain.
	HomeChainID uint64

	// KeeperIdentity is the identity the keeper uses as migration initiator.
	KeeperIdentity string

	// AuthorizedUpdater is the identity allowed to push yield observations.
	AuthorizedUpdater string

	// AuthorizedCaller is the identity allowed to deliver bridge completion
	// callbacks.
	AuthorizedCaller string

	// AdminIdentity is allowed to cancel pending migrations and operate the
	// admin HTTP surface.
	AdminIdentity string

	// AdminToken authenticates requests to the admin HTTP endpoints.
	AdminToken string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	HomeChainID, err = getEnvAsUint64("ALM_HOME_CHAIN_ID")
	if err != nil {
		return err
	}

	KeeperIdentity, err = getEnv("ALM_KEEPER_IDENTITY")
	if err != nil {
		return err
	}

	AuthorizedUpdater, err = getEnv("ALM_AUTHORIZED_UPDATER")
	if err != nil {
		return err
	}

	AuthorizedCaller, err = getEnv("ALM_AUTHORIZED_CALLER")
	if err != nil {
		return err
	}

	AdminIdentity, err = getEnv("ALM_ADMIN_IDENTITY")
	if err != nil {
		return err
	}

	AdminToken, err = getEnv("ALM_ADMIN_TOKEN")
	if err != nil {
		return err
	}

	log.Debug().
		Uint64("HomeChainID", HomeChainID).
		Str("KeeperIdentity", KeeperIdentity).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}
