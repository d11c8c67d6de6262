package util

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	mu      sync.Mutex
)

// NewRunId returns a lower-case ULID. Ids from one process sort in the order they were made,
// so reports and logs of successive runs list chronologically.
func NewRunId() string {
	mu.Lock()
	defer mu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), entropy).String())
}
