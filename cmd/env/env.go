// Package env holds the environment variable names shared
// across the tasas commands
package env

const (
	// Prefix is the env var prefix for all tasas configuration
	Prefix = "TASAS"

	// DBURLSuffix is the Postgres connection string variable
	DBURLSuffix = "_DB_URL"

	// RedisURLSuffix is the Redis connection string variable,
	// used for the distributed run lock
	RedisURLSuffix = "_REDIS_URL"
)
