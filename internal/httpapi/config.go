package httpapi

import "github.com/rs/zerolog"

// defaultMaxBodyBytes is the request body limit used when Options leaves it unset.
const defaultMaxBodyBytes int64 = 1 << 20

// CORSOptions configure the opt-in CORS middleware. If disabled, no CORS
// middleware is added.
type CORSOptions struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Options configure the HTTP layer.
type Options struct {
	// MaxBodyBytes limits the request body. Zero or negative means 1 MiB.
	MaxBodyBytes int64
	// StrictContentType rejects bodies not declared as application/json with
	// 415. By default the body is parsed as JSON whatever its declared type.
	StrictContentType bool
	CORS              CORSOptions
	// Logger receives request events. Nil disables request logging.
	Logger *zerolog.Logger
	// LogLevel is the default per-request level; see requestLogLevel.
	LogLevel LogLevel
}

func (o Options) maxBodyBytes() int64 {
	if o.MaxBodyBytes <= 0 {
		return defaultMaxBodyBytes
	}
	return o.MaxBodyBytes
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return o.Logger
}
