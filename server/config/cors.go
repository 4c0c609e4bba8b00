package config

import "net/http"

// CORS defines the cross-origin resource sharing policy
// for the rate endpoints
type CORS struct {
	// A list of origins a cross-domain request can be executed from
	AllowedOrigins []string `toml:"allowed_origins"`

	// A list of methods the client is allowed to use
	AllowedMethods []string `toml:"allowed_methods"`

	// A list of non-simple headers the client is allowed to use
	AllowedHeaders []string `toml:"allowed_headers"`
}

// DefaultCORSConfig returns a permissive read-mostly CORS policy
func DefaultCORSConfig() *CORS {
	return &CORS{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type"},
	}
}
