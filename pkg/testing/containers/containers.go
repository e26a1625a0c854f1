package containers

import "os"

// getEnvOrDefault reads an environment variable, falling back to a default
// when unset or empty.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
