package common

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/joho/godotenv"
	logger "github.com/kthomas/go-logger"
)

const defaultTreeDepth = 8
const defaultArtifactChunks = 10
const defaultArtifactsPath = "circuits/artifacts"
const defaultCircuitLocation = "circuits/artifacts/folded.json"
const defaultEngineProvider = "native"
const defaultProofArtifact = "bjj_ecdsa_membership_fold"
const defaultListenPort = "8080"

var (
	// Log is the configured logger
	Log *logger.Logger

	// ArtifactChunks is the number of chunks large artifacts are split into for transport
	ArtifactChunks int

	// ArtifactsPath is the local directory holding params, keys and per-session proofs
	ArtifactsPath string

	// CircuitLocation is the local path or remote URL of the folded membership circuit
	CircuitLocation string

	// ConsumeNATSStreamingSubscriptions is true when the NATS consumers should be started
	ConsumeNATSStreamingSubscriptions bool

	// EngineProvider names the recursive proof engine
	EngineProvider string

	// ListenPort is the port the API listens on
	ListenPort string

	// MaxConcurrentJobs bounds the number of fold, verify and compress jobs running at once
	MaxConcurrentJobs int

	// ParamsLocation is the optional local path or remote URL of pre-generated public params
	ParamsLocation string

	// ProofArtifact is the artifact name used for per-session proof files
	ProofArtifact string

	// TreeDepth is the depth D of the membership accumulator
	TreeDepth int
)

func init() {
	godotenv.Load()

	requireLogger()
	requireConfig()
}

func requireLogger() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "INFO"
	}

	var endpoint *string
	if os.Getenv("SYSLOG_ENDPOINT") != "" {
		endpt := os.Getenv("SYSLOG_ENDPOINT")
		endpoint = &endpt
	}

	Log = logger.NewLogger("fold", lvl, endpoint)

	if strings.ToUpper(lvl) != "TRACE" {
		gnarklogger.Disable()
	}
}

func requireConfig() {
	TreeDepth = intFromEnv("FOLD_TREE_DEPTH", defaultTreeDepth)
	ArtifactChunks = intFromEnv("FOLD_ARTIFACT_CHUNKS", defaultArtifactChunks)
	MaxConcurrentJobs = intFromEnv("FOLD_MAX_CONCURRENT_JOBS", runtime.NumCPU())

	ArtifactsPath = stringFromEnv("FOLD_ARTIFACTS_PATH", defaultArtifactsPath)
	CircuitLocation = stringFromEnv("FOLD_CIRCUIT_LOCATION", defaultCircuitLocation)
	EngineProvider = stringFromEnv("FOLD_ENGINE_PROVIDER", defaultEngineProvider)
	ListenPort = stringFromEnv("PORT", defaultListenPort)
	ParamsLocation = os.Getenv("FOLD_PARAMS_LOCATION")
	ProofArtifact = stringFromEnv("FOLD_PROOF_ARTIFACT", defaultProofArtifact)

	ConsumeNATSStreamingSubscriptions = strings.ToLower(os.Getenv("CONSUME_NATS_STREAMING_SUBSCRIPTIONS")) == "true"
}

func intFromEnv(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		Log.Warningf("ignoring invalid %s value %s; using default %d", key, val, fallback)
		return fallback
	}

	return i
}

func stringFromEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
