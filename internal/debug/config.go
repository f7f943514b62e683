package debug

import (
	"os"
	"strconv"
	"strings"
)

// Config holds debug mode configuration
type Config struct {
	// Enabled is the global debug on/off switch
	Enabled bool

	// SingleThreaded runs background work inline (bg.Sync)
	SingleThreaded bool
}

// Active is the global debug configuration
var Active Config

// Init reads SIGNET_DEBUG* environment variables and arms Faults.
func Init() {
	Active = Config{
		Enabled:        parseBool(os.Getenv("SIGNET_DEBUG"), false),
		SingleThreaded: parseBool(os.Getenv("SIGNET_DEBUG_SINGLE_THREAD"), false),
	}

	for _, stage := range splitList(os.Getenv("SIGNET_DEBUG_FAIL_STAGE")) {
		Faults.FailStage(stage, nil)
	}
	for _, stage := range splitList(os.Getenv("SIGNET_DEBUG_INTERRUPT_STAGE")) {
		Faults.InterruptStage(stage)
	}

	if Active.SingleThreaded {
		Active.Enabled = true
	}
}

func parseBool(s string, defaultVal bool) bool {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
