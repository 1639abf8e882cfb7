package gateway

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator provides randomness for request and session identifiers.
type IDGenerator interface {
	NewID() string
}

// RandomIDGenerator generates hex IDs using cryptographic randomness.
type RandomIDGenerator struct{}

var fallbackIDCounter uint64

func (RandomIDGenerator) NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Extremely rare; fall back to time + counter so IDs remain unique.
		nano := time.Now().UnixNano()
		if nano < 0 {
			nano = 0
		}
		binary.LittleEndian.PutUint64(b[0:8], uint64(nano))
		binary.LittleEndian.PutUint64(b[8:16], atomic.AddUint64(&fallbackIDCounter, 1))
	}
	return hex.EncodeToString(b[:])
}

// ULIDGenerator generates lexicographically sortable IDs. Session identifiers
// use these so DynamoDB range queries return sessions in creation order.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ULIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	if err != nil {
		return RandomIDGenerator{}.NewID()
	}
	return strings.ToLower(id.String())
}
