package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/framelog/adapter"
	"github.com/pithecene-io/framelog/adapter/redis"
	"github.com/pithecene-io/framelog/adapter/webhook"
	"github.com/pithecene-io/framelog/cli/config"
	"github.com/pithecene-io/framelog/lode"
)

// Exit codes.
const (
	exitSuccess    = 0
	exitError      = 1
	exitIncomplete = 2
)

// archiveChoice holds parsed archive configuration.
type archiveChoice struct {
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	dataset   string
	region    string
	endpoint  string
	pathStyle bool
}

func archiveChoiceFromConfig(a config.ArchiveConfig) archiveChoice {
	return archiveChoice{
		backend:   a.Backend,
		path:      a.Path,
		dataset:   a.Dataset,
		region:    a.Region,
		endpoint:  a.Endpoint,
		pathStyle: a.S3PathStyle,
	}
}

func (a archiveChoice) enabled() bool {
	return a.path != ""
}

func (a archiveChoice) backendName() string {
	if !a.enabled() {
		return "none"
	}
	if a.backend == "" {
		return "fs"
	}
	return a.backend
}

// buildArchiver opens the archive described by choice.
func buildArchiver(ctx context.Context, choice archiveChoice) (*lode.Archiver, error) {
	cfg := lode.Config{Dataset: choice.dataset}

	switch choice.backendName() {
	case "fs":
		return lode.NewFSArchiver(cfg, choice.path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(choice.path)
		return lode.NewS3Archiver(ctx, cfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.pathStyle,
		})
	case "none":
		return nil, fmt.Errorf("archive path is required")
	default:
		return nil, fmt.Errorf("unknown archive backend: %s (must be fs or s3)", choice.backend)
	}
}

// buildAdapter creates the session notification adapter, or nil when none
// is configured.
func buildAdapter(a config.AdapterConfig) (adapter.Adapter, error) {
	switch a.Type {
	case "":
		return nil, nil
	case "redis":
		cfg := redis.Config{
			URL:       a.URL,
			Channel:   a.Channel,
			KeyPrefix: a.KeyPrefix,
			TTL:       a.TTL.Duration,
			Timeout:   a.Timeout.Duration,
			Retries:   retriesOr(a.Retries, redis.DefaultRetries),
		}
		return redis.New(cfg)
	case "webhook":
		cfg := webhook.Config{
			URL:     a.URL,
			Headers: a.Headers,
			Timeout: a.Timeout.Duration,
			Retries: retriesOr(a.Retries, webhook.DefaultRetries),
		}
		return webhook.New(cfg)
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be redis or webhook)", a.Type)
	}
}

// retriesOr keeps an explicit retries: 0 distinct from an omitted value.
func retriesOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
