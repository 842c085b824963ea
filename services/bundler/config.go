package bundler

import (
	"io"
	"net/http"
	"time"
)

// BuildConfig configures bundle creation.
type BuildConfig struct {
	ConfigsDir string
	Output     string
	Signer     *Signer
	Now        func() time.Time
	Stdout     io.Writer
}

// ImportConfig configures bundle import operations.
type ImportConfig struct {
	BundlePath string
	EngineURL  string
	HTTPClient *http.Client
	Signer     *Signer
	Now        func() time.Time
	Stdout     io.Writer
}
