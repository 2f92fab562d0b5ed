package config

import (
	"os"
	"strings"
)

const defaultLedgerURL = "https://pteron.trap.show/api/v1"

type Config struct {
	LedgerAPIURL    string
	AccessToken     string
	ProjectID       string
	DefaultUserID   string
	AuthorizedUsers []string
	ReturnBaseURL   string
	RedisAddr       string
	Port            string
	Env             string
}

// Load reads the configuration from the environment. Credentials and the
// project id are allowed to be empty here; the ledger client and the
// service report those as configuration errors per operation, so the
// process can still start and serve /health.
func Load() *Config {
	apiURL := os.Getenv("LEDGER_API_URL")
	if apiURL == "" {
		apiURL = defaultLedgerURL
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	returnBase := os.Getenv("RETURN_BASE_URL")
	if returnBase == "" {
		returnBase = "http://localhost:" + port
	}

	return &Config{
		LedgerAPIURL:    apiURL,
		AccessToken:     os.Getenv("LEDGER_ACCESS_TOKEN"),
		ProjectID:       os.Getenv("LEDGER_PROJECT_ID"),
		DefaultUserID:   os.Getenv("LEDGER_DEFAULT_USER_ID"),
		AuthorizedUsers: splitUsers(os.Getenv("AUTHORIZED_USERS")),
		ReturnBaseURL:   returnBase,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		Port:            port,
		Env:             env,
	}
}

func splitUsers(raw string) []string {
	if raw == "" {
		return nil
	}
	var users []string
	for _, u := range strings.Split(raw, ";") {
		u = strings.TrimSpace(u)
		if u != "" {
			users = append(users, u)
		}
	}
	return users
}
