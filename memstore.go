package mqttv5

import (
	"fmt"
)

type publishRecord struct {
	packetID uint16
	qos      byte
	state    PublishState
}

// memstore fixed capacity publish record table. The engine owns it and
// drives it from a single goroutine, so there is no locking.
type memstore struct {
	records  []publishRecord
	capacity int
}

func (ms *memstore) Insert(packetID uint16, qos byte, state PublishState) error {
	if ms.index(packetID) >= 0 {
		return fmt.Errorf("%w: %d", ErrStateCollision, packetID)
	}
	if len(ms.records) >= ms.capacity {
		return fmt.Errorf("%w: %d publish records in use", ErrNoMemory, ms.capacity)
	}
	ms.records = append(ms.records, publishRecord{packetID: packetID, qos: qos, state: state})
	return nil
}

func (ms *memstore) GetByID(packetID uint16) (PublishState, bool) {
	if i := ms.index(packetID); i >= 0 {
		return ms.records[i].state, true
	}
	return PublishStateNone, false
}

func (ms *memstore) Update(packetID uint16, state PublishState) bool {
	i := ms.index(packetID)
	if i < 0 {
		return false
	}
	ms.records[i].state = state
	return true
}

func (ms *memstore) DeleteByID(packetID uint16) bool {
	i := ms.index(packetID)
	if i < 0 {
		return false
	}
	ms.records = append(ms.records[:i], ms.records[i+1:]...)
	return true
}

func (ms *memstore) DeleteAll() {
	ms.records = ms.records[:0]
}

func (ms *memstore) Len() int {
	return len(ms.records)
}

func (ms *memstore) index(packetID uint16) int {
	for i := range ms.records {
		if ms.records[i].packetID == packetID {
			return i
		}
	}
	return -1
}

func newMemStore(capacity int) *memstore {
	return &memstore{records: make([]publishRecord, 0, capacity), capacity: capacity}
}
