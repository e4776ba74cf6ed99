package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "COWORKHUB_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode accepts any strconv.ParseBool spelling; unset or malformed means off.
func detectTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testModeFlag.Store(err == nil && on)
}

// InTestMode reports whether binaries should skip connecting to Postgres and Redis.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads COWORKHUB_TEST_MODE after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
