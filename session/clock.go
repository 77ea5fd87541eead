package session

import (
	"time"

	mqttv5 "github.com/srishina/mqttv5.go"
)

// NewClock returns a millisecond time source counting from now. The value
// wraps around after about 49 days.
func NewClock() mqttv5.TimeFunc {
	start := time.Now()
	return func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}
}
