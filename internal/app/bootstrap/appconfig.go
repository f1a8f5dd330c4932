// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds groupsnap configuration on top of WAFFLE's CoreConfig.
//
// CoreConfig covers ports, TLS, logging and request limits. Everything
// specific to this service lives here and is passed to every lifecycle
// hook.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // e.g. mongodb://localhost:27017
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Auth token and cookie
	JWTSecret    string        // HMAC key for signing tokens
	JWTTTL       time.Duration // token lifetime
	CookieDomain string        // blank means current host

	// Browser origin allowed by CORS and the websocket origin check
	FrontendURL string

	// Object storage
	StorageType      string // "local" or "s3"
	StorageLocalPath string // directory for local blobs
	StorageLocalURL  string // URL prefix local blobs are served from

	// S3 configuration (only used if StorageType is "s3")
	StorageS3Region   string
	StorageS3Bucket   string
	StorageS3Prefix   string
	StorageS3Endpoint string // S3-compatible endpoint (MinIO, R2)
	StoragePublicURL  string // CDN base for object links

	// Request budget per client IP per hour on /api
	RateLimitPerHour int

	// Background reconciliation of images whose group or poster is gone.
	// Zero disables the sweep.
	OrphanSweepInterval time.Duration

	// Bound on a single realtime frame write
	WSWriteTimeout time.Duration
}
