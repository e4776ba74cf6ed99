package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("COWORKHUB_TEST_MODE", "1")
		if os.Getenv("SESSION_SECRET") == "" {
			_ = os.Setenv("SESSION_SECRET", "test-session-secret-0123456789")
		}
		if os.Getenv("CSRF_SECRET") == "" {
			_ = os.Setenv("CSRF_SECRET", "test-csrf-secret")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
