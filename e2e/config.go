package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_FIRESTORE_PROJECT selects the project for the firestore-backed
	// scenario; point FIRESTORE_EMULATOR_HOST at an emulator to run it
	// without credentials. The scenario is skipped when unset.
	FirestoreProject string `envconfig:"E2E_FIRESTORE_PROJECT"`
	UserA            string `envconfig:"E2E_USER_A" default:"founder-1"`
	UserB            string `envconfig:"E2E_USER_B" default:"mentor-1"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
