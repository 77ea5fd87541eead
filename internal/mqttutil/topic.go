package mqttutil

import (
	"errors"
	"strings"
)

var (
	ErrInvalidTopic           = errors.New("invalid topic")
	ErrEmptySubscriptionTopic = errors.New("empty subscription topics are not allowed")
	ErrEmptyPublishTopic      = errors.New("empty topic name without a topic alias")
)

// ValidatePublishTopic that a topic used for publishing is valid.
// Return ErrInvalidTopic if + or # found in the topic. An empty topic
// is only valid when the PUBLISH carries a topic alias, MQTT 3.3.2.3.4
func ValidatePublishTopic(topic string, hasAlias bool) error {
	if len(topic) == 0 && !hasAlias {
		return ErrEmptyPublishTopic
	}

	if len(topic) > 65535 {
		return ErrInvalidTopic
	}

	if strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}

	return nil
}

// ValidateSubscribeTopic Validate that a topic used for
// subscriptions is valid. Search for + or # in a topic,
// validate that they are not in the invalid positions
func ValidateSubscribeTopic(topic string) error {
	if len(topic) == 0 {
		return ErrEmptySubscriptionTopic
	}

	if len(topic) > 65535 {
		return ErrInvalidTopic
	}

	var previousChar rune
	topicLen := len(topic)

	for i, c := range topic {
		if c == '+' {
			if (i != 0 && previousChar != '/') || (i < topicLen-1 && topic[i+1] != '/') {
				return ErrInvalidTopic
			}
		} else if c == '#' {
			if (i != 0 && previousChar != '/') || (i < (topicLen - 1)) {
				return ErrInvalidTopic
			}
		}
		previousChar = c
	}
	return nil
}
