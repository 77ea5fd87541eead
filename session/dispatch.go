package session

import (
	log "github.com/sirupsen/logrus"
	mqttv5 "github.com/srishina/mqttv5.go"
)

// DefaultAckReason the reason string attached to the PUBREL of every PUBREC
const DefaultAckReason = "test"

// Dispatcher classifies the events of one engine and logs them. It holds no
// state between calls, only the topic filter records change.
type Dispatcher struct {
	log       log.FieldLogger
	topics    *TopicFilters
	ackReason string
}

// NewDispatcher creates a dispatcher that records SUBACKs into topics, which
// may be nil when nothing is subscribed. An empty ackReason uses
// DefaultAckReason.
func NewDispatcher(logger log.FieldLogger, topics *TopicFilters, ackReason string) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if ackReason == "" {
		ackReason = DefaultAckReason
	}
	return &Dispatcher{log: logger, topics: topics, ackReason: ackReason}
}

// Dispatch is the engine callback
func (d *Dispatcher) Dispatch(ev *mqttv5.IncomingEvent) {
	if ev.Kind == mqttv5.EventPubRec {
		if ev.NextAck == nil {
			ev.NextAck = &mqttv5.PublishResponseProperties{}
		}
		ev.NextAck.ReasonString = d.ackReason
	} else {
		ev.NextAck = nil
	}

	switch ev.Kind {
	case mqttv5.EventPubAck, mqttv5.EventPubRec, mqttv5.EventPubRel, mqttv5.EventPubComp:
		d.log.WithField("packet_id", ev.PacketID).Infof("%s received", ev.Kind)
	case mqttv5.EventPingResp:
		d.log.Warn("PINGRESP should not be handled by the application callback when using ProcessLoop")
	case mqttv5.EventSubAck:
		d.handleSubAck(ev)
	case mqttv5.EventUnsubAck:
		d.handleUnsubAck(ev)
	case mqttv5.EventPublish:
		d.handlePublish(ev)
	default:
		d.log.Warnf("Unknown packet type received:(%02X)", ev.PacketType.Header(0))
	}
}

func (d *Dispatcher) handleSubAck(ev *mqttv5.IncomingEvent) {
	logger := d.log.WithField("packet_id", ev.PacketID)
	if d.topics == nil || !d.topics.Acknowledge(ev.PacketID, ev.SubAckCodes) {
		logger.Warn("SUBACK received for an unknown subscription")
		return
	}
	for _, r := range d.topics.Records() {
		if r.packetID != ev.PacketID {
			continue
		}
		if r.Status == TopicGranted {
			logger.Infof("Subscribed to the topic %s", r.Filter)
		} else {
			logger.Warnf("Server rejected the subscription to the topic %s", r.Filter)
		}
	}
}

func (d *Dispatcher) handleUnsubAck(ev *mqttv5.IncomingEvent) {
	logger := d.log.WithField("packet_id", ev.PacketID)
	if d.topics == nil || !d.topics.AcknowledgeUnsubscribe(ev.PacketID, ev.UnsubAckCodes) {
		logger.Warn("UNSUBACK received for an unknown subscription")
		return
	}
	for _, r := range d.topics.Records() {
		if r.packetID == ev.PacketID && r.Status == TopicUnsubscribed {
			logger.Infof("Unsubscribed from the topic %s", r.Filter)
		}
	}
}

func (d *Dispatcher) handlePublish(ev *mqttv5.IncomingEvent) {
	p := ev.Publish
	if p == nil {
		return
	}
	d.log.WithFields(log.Fields{
		"packet_id": ev.PacketID,
		"topic":     p.TopicName,
		"qos":       p.QoSLevel,
		"size":      len(p.Payload),
	}).Info("Incoming PUBLISH received")
}
