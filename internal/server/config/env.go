package config

import "os"

// parseEnv overlays secrets and endpoints from environment variables. Env
// wins over flags so deployments can keep credentials out of argv.
func parseEnv(config *Config) {
	apply := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	apply(&config.DatabaseDSN, "DATABASE_DSN")
	apply(&config.SecretKey, "SECRET_KEY")
	apply(&config.S3RootUser, "S3_ROOT_USER")
	apply(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	apply(&config.S3Bucket, "S3_BUCKET")
	apply(&config.S3Region, "S3_REGION")
	apply(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	apply(&config.VisionEndpoint, "VISION_ENDPOINT")
	apply(&config.VisionAPIKey, "VISION_API_KEY")
	apply(&config.VisionModel, "VISION_MODEL")
}
