package types

// RunMode is the deployment mode. cmd/worker checks only for ModeLocal,
// which backs its pubsub with one in-process broker instead of Kafka.
type RunMode string

const (
	ModeLocal   RunMode = "local"
	ModeWorker  RunMode = "worker"
	ModeIngest  RunMode = "ingest"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
)
