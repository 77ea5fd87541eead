package session

import (
	"errors"
	"fmt"

	mqttv5 "github.com/srishina/mqttv5.go"
)

// ErrTopicTooLong a generated topic filter does not fit the topic buffer
var ErrTopicTooLong = errors.New("topic filter too long")

// TopicStatus the acknowledgment state of a subscribed topic filter
type TopicStatus byte

const (
	TopicPending TopicStatus = iota
	TopicGranted
	TopicDenied
	TopicUnsubscribed
)

var topicStatusText = map[TopicStatus]string{
	TopicPending:      "pending",
	TopicGranted:      "granted",
	TopicDenied:       "denied",
	TopicUnsubscribed: "unsubscribed",
}

func (s TopicStatus) String() string {
	return topicStatusText[s]
}

// TopicFilterRecord one topic filter of the session and what the server
// answered to its subscription
type TopicFilterRecord struct {
	Filter string
	Status TopicStatus

	packetID uint16
}

// TopicFilters the topic filters of one session iteration. The records are
// created once and only their status changes afterwards.
type TopicFilters struct {
	records []TopicFilterRecord
}

// NewTopicFilters builds count filters named <clientID>/example/topic<N>,
// N counting from 0. Every filter must fit a buffer of bufferSize bytes
// including a terminator.
func NewTopicFilters(clientID string, count, bufferSize int) (*TopicFilters, error) {
	records := make([]TopicFilterRecord, 0, count)
	for i := 0; i < count; i++ {
		filter := fmt.Sprintf("%s/example/topic%d", clientID, i)
		if len(filter) >= bufferSize {
			return nil, fmt.Errorf("%w: %q needs %d bytes, the buffer has %d", ErrTopicTooLong, filter, len(filter)+1, bufferSize)
		}
		records = append(records, TopicFilterRecord{Filter: filter, Status: TopicPending})
	}
	return &TopicFilters{records: records}, nil
}

// Len number of topic filters
func (t *TopicFilters) Len() int {
	return len(t.records)
}

// Records returns a copy of the records
func (t *TopicFilters) Records() []TopicFilterRecord {
	return append([]TopicFilterRecord(nil), t.records...)
}

// Filters the topic filter strings in order
func (t *TopicFilters) Filters() []string {
	filters := make([]string, len(t.records))
	for i, r := range t.records {
		filters[i] = r.Filter
	}
	return filters
}

// Subscriptions one subscription per filter at the given QoS
func (t *TopicFilters) Subscriptions(qos byte) []mqttv5.Subscription {
	subscriptions := make([]mqttv5.Subscription, len(t.records))
	for i, r := range t.records {
		subscriptions[i] = mqttv5.Subscription{TopicFilter: r.Filter, QoSLevel: qos}
	}
	return subscriptions
}

// Subscribe marks every filter as pending on the SUBSCRIBE with packetID
func (t *TopicFilters) Subscribe(packetID uint16) {
	for i := range t.records {
		t.records[i].packetID = packetID
		t.records[i].Status = TopicPending
	}
}

// Acknowledge applies the SUBACK codes of packetID to its filters in order.
// Filters without a matching code stay pending. It returns false when no
// filter was subscribed with packetID.
func (t *TopicFilters) Acknowledge(packetID uint16, codes []mqttv5.SubAckReasonCode) bool {
	return t.apply(packetID, len(codes), func(i int, _ TopicStatus) TopicStatus {
		if codes[i].Granted() {
			return TopicGranted
		}
		return TopicDenied
	})
}

// Unsubscribe marks every filter as being removed by the UNSUBSCRIBE with
// packetID. The status is kept until the UNSUBACK arrives.
func (t *TopicFilters) Unsubscribe(packetID uint16) {
	for i := range t.records {
		t.records[i].packetID = packetID
	}
}

// AcknowledgeUnsubscribe applies the UNSUBACK codes of packetID. Filters the
// server refused to remove keep their status.
func (t *TopicFilters) AcknowledgeUnsubscribe(packetID uint16, codes []mqttv5.UnsubAckReasonCode) bool {
	return t.apply(packetID, len(codes), func(i int, current TopicStatus) TopicStatus {
		if codes[i].Removed() {
			return TopicUnsubscribed
		}
		return current
	})
}

// apply hands the i-th filter held by packetID to status, for the first
// count of them
func (t *TopicFilters) apply(packetID uint16, count int, status func(i int, current TopicStatus) TopicStatus) bool {
	found := false
	next := 0
	for i := range t.records {
		r := &t.records[i]
		if packetID == 0 || r.packetID != packetID {
			continue
		}
		found = true
		if next < count {
			r.Status = status(next, r.Status)
			next++
		}
	}
	return found
}
