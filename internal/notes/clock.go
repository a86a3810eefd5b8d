package notes

import (
	"math/rand"
	"strconv"
	"time"
)

// Clock abstracts time retrieval so store logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts device id generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// DeviceIDGenerator produces ids of the form device_<base36>_<epochms>.
type DeviceIDGenerator struct {
	Clock Clock
}

func (g DeviceIDGenerator) New() string {
	clock := g.Clock
	if clock == nil {
		clock = RealClock{}
	}
	r := strconv.FormatUint(rand.Uint64(), 36)
	if len(r) > 9 {
		r = r[:9]
	}
	return "device_" + r + "_" + strconv.FormatInt(clock.Now().UnixMilli(), 10)
}
