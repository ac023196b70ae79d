package config

import (
	"time"

	"github.com/Sumatoshi-tech/designmap/pkg/cache"
	"github.com/Sumatoshi-tech/designmap/pkg/generate"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/validate"
)

// Server defaults.
const (
	DefaultServerHost         = "0.0.0.0"
	DefaultServerPort         = 8080
	DefaultServerReadTimeout  = 30 * time.Second
	DefaultServerWriteTimeout = 10 * time.Minute
	DefaultServerIdleTimeout  = 60 * time.Second
	DefaultServerMaxBody      = "32MB"
)

// Cache defaults.
const (
	DefaultCacheBackend   = cache.BackendMemory
	DefaultCacheFrontSize = cache.DefaultFrontSize
)

// Pipeline defaults. Zero workers means one per CPU.
const (
	DefaultPipelineWorkers         = 0
	DefaultPipelineIncludeNested   = false
	DefaultPipelineMaxAttempts     = pipeline.DefaultMaxAttempts
	DefaultPipelineInitialInterval = pipeline.DefaultInitialInterval
	DefaultPipelineMaxInterval     = pipeline.DefaultMaxInterval
	DefaultPipelineMaxElapsed      = pipeline.DefaultMaxElapsed
	DefaultPipelineCallTimeout     = pipeline.DefaultCallTimeout
)

// External collaborator defaults.
const (
	DefaultGenerateEnabled     = false
	DefaultGenerateModel       = generate.DefaultModel
	DefaultGenerateTemperature = 0.2
	DefaultValidateTimeout     = validate.DefaultTimeout
)

// Logging and observability defaults.
const (
	DefaultLogLevel   = "info"
	DefaultLogFormat  = LogFormatText
	DefaultPrometheus = true
)
