package core

import (
	"strings"

	"go.uber.org/zap"
)

// Options configures the core components. The zero value is usable.
type Options struct {
	Logger *zap.Logger
	// ShareBaseURL is the web front end that share links point at, e.g. http://localhost:3000.
	ShareBaseURL string
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) shareURL(kind, id string) string {
	if o.ShareBaseURL == "" || id == "" {
		return ""
	}
	return strings.TrimRight(o.ShareBaseURL, "/") + "/" + kind + "/" + id
}
