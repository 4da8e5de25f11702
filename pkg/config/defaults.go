package config

import "time"

// Executor kinds.
const (
	ExecutorSequential = "sequential"
	ExecutorPool       = "pool"
)

// Blame modes.
const (
	BlameProcess = "process"
	BlameNative  = "native"
)

// Extraction defaults.
const (
	DefaultTabSize      = 4
	DefaultWindowDays   = 0
	DefaultIgnoreVendor = false
)

// Executor defaults. Zero workers means one per CPU.
const (
	DefaultExecutorKind    = ExecutorPool
	DefaultExecutorWorkers = 0
)

// Blame defaults.
const (
	DefaultBlameMode    = BlameProcess
	DefaultBlameTimeout = 30 * time.Second
	DefaultBlameBinary  = "git"
)

// Sink defaults. "-" writes JSON lines to stdout.
const (
	DefaultSinkURL = "-"
	DefaultSinkLZ4 = false
)

// Checkpoint defaults. An empty directory means ~/.githarvest/checkpoints.
const (
	DefaultCheckpointEnabled = true
	DefaultCheckpointDir     = ""
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)
