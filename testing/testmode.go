// Package testing flips the process into test mode when blank-imported from
// a test binary, so commands and workers skip their external side effects.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("REGISTER_SNAPSHOT_DIR") == "" {
			_ = os.Setenv("REGISTER_SNAPSHOT_DIR", os.TempDir())
		}
	})
}

func init() {
	ensureTestMode()
}
