package mqttutil

// PIDGenerator hands out 16 bit packet identifiers. Identifiers roll over
// from 65535 back to 1 and never yield 0, MQTT 2.2.1.
type PIDGenerator struct {
	last  uint16
	inUse func(id uint16) bool
}

// NewPIDGenerator creates a generator. inUse, when not nil, reports ids that
// are still held by an unacknowledged packet, those ids are skipped.
func NewPIDGenerator(inUse func(id uint16) bool) *PIDGenerator {
	return &PIDGenerator{inUse: inUse}
}

// NextID returns the next identifier after the last one handed out. It
// returns 0 only when every identifier is in use.
func (pid *PIDGenerator) NextID() uint16 {
	id := pid.last
	for range 65535 {
		id++
		if id == 0 {
			id = 1
		}
		if pid.inUse == nil || !pid.inUse(id) {
			pid.last = id
			return id
		}
	}
	return 0
}
