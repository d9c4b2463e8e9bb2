// Package config provides application configuration management from environment variables.
//
// # Overview
//
// LoadConfig reads LARDER_* variables, applies defaults and validates the
// result. Nothing is read from files.
//
// Server settings:
//
//	LARDER_HOST="0.0.0.0"
//	LARDER_PORT="8080"
//	LARDER_HEALTH_PORT="9090"
//	LARDER_ALLOWED_ORIGINS="https://app.example.com"
//	LARDER_MAX_UPLOAD_BYTES="209715200"
//
// Persistence:
//
//	LARDER_DATABASE_URL="postgres://..."
//	LARDER_REDIS_URL="redis://localhost:6379/0"
//	LARDER_OBJECTSTORE_BACKEND="s3"  # s3, minio, memory
//	LARDER_OBJECTSTORE_PUBLIC_BUCKET / LARDER_OBJECTSTORE_PRIVATE_BUCKET
//
// Auth:
//
//	LARDER_JWT_SECRET (32+ bytes)
//	LARDER_ACCESS_TOKEN_TTL="15m"
//	LARDER_REFRESH_TOKEN_TTL="168h"
//	LARDER_GOOGLE_CLIENT_ID / LARDER_GOOGLE_CLIENT_SECRET
//
// AI and quotas:
//
//	LARDER_GEMINI_API_KEY, LARDER_GEMINI_MODEL="gemini-1.5-flash"
//	LARDER_AI_PROMPT_FILE (hot reloaded)
//	LARDER_QUOTA_AI_LIMIT="3", LARDER_QUOTA_AI_FREQUENCY="DAILY"
package config
