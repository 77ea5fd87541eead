package session

import (
	"strings"
	"testing"

	mqttv5 "github.com/srishina/mqttv5.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTopicFilters(t *testing.T) {
	topics, err := NewTopicFilters("testClient", 3, 100)
	require.NoError(t, err)

	records := topics.Records()
	require.Len(t, records, 3)
	for i, want := range []string{
		"testClient/example/topic0",
		"testClient/example/topic1",
		"testClient/example/topic2",
	} {
		assert.Equal(t, want, records[i].Filter)
		assert.Equal(t, TopicPending, records[i].Status)
	}

	subscriptions := topics.Subscriptions(1)
	require.Len(t, subscriptions, 3)
	assert.Equal(t, "testClient/example/topic1", subscriptions[1].TopicFilter)
	assert.Equal(t, byte(1), subscriptions[1].QoSLevel)
}

func TestNewTopicFiltersTooLong(t *testing.T) {
	// "/example/topic0" adds 15 bytes
	clientID := strings.Repeat("c", 84)
	_, err := NewTopicFilters(clientID, 1, 100)
	assert.NoError(t, err)

	clientID = strings.Repeat("c", 85)
	_, err = NewTopicFilters(clientID, 1, 100)
	assert.ErrorIs(t, err, ErrTopicTooLong)
}

func TestTopicFiltersAcknowledge(t *testing.T) {
	topics, err := NewTopicFilters("testClient", 3, 100)
	require.NoError(t, err)

	assert.False(t, topics.Acknowledge(7, []mqttv5.SubAckReasonCode{mqttv5.SubAckReasonCodeGrantedQoS1}),
		"nothing was subscribed yet")

	topics.Subscribe(7)
	assert.False(t, topics.Acknowledge(8, []mqttv5.SubAckReasonCode{mqttv5.SubAckReasonCodeGrantedQoS1}))
	for _, r := range topics.Records() {
		assert.Equal(t, TopicPending, r.Status)
	}

	require.True(t, topics.Acknowledge(7, []mqttv5.SubAckReasonCode{
		mqttv5.SubAckReasonCodeGrantedQoS1,
		mqttv5.SubAckReasonCodeNotAuthorized,
	}))
	records := topics.Records()
	assert.Equal(t, TopicGranted, records[0].Status)
	assert.Equal(t, TopicDenied, records[1].Status)
	assert.Equal(t, TopicPending, records[2].Status, "no code for the third filter")
	assert.Equal(t, "denied", records[1].Status.String())
}

func TestTopicFiltersUnsubscribe(t *testing.T) {
	topics, err := NewTopicFilters("testClient", 3, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"testClient/example/topic0",
		"testClient/example/topic1",
		"testClient/example/topic2",
	}, topics.Filters())

	topics.Subscribe(1)
	require.True(t, topics.Acknowledge(1, []mqttv5.SubAckReasonCode{
		mqttv5.SubAckReasonCodeGrantedQoS1,
		mqttv5.SubAckReasonCodeGrantedQoS1,
		mqttv5.SubAckReasonCodeNotAuthorized,
	}))

	topics.Unsubscribe(2)
	assert.False(t, topics.Acknowledge(1, []mqttv5.SubAckReasonCode{mqttv5.SubAckReasonCodeGrantedQoS0}),
		"the filters moved to the UNSUBSCRIBE")
	assert.Equal(t, TopicGranted, topics.Records()[0].Status)

	require.True(t, topics.AcknowledgeUnsubscribe(2, []mqttv5.UnsubAckReasonCode{
		mqttv5.UnsubAckReasonCodeSuccess,
		mqttv5.UnsubAckReasonCodeImplSpecificError,
		mqttv5.UnsubAckNoSubscriptionExisted,
	}))
	records := topics.Records()
	assert.Equal(t, TopicUnsubscribed, records[0].Status)
	assert.Equal(t, TopicGranted, records[1].Status)
	assert.Equal(t, TopicUnsubscribed, records[2].Status)
	assert.Equal(t, "unsubscribed", records[2].Status.String())
}

func TestTopicFiltersEmpty(t *testing.T) {
	topics, err := NewTopicFilters("testClient", 0, 100)
	require.NoError(t, err)
	assert.Zero(t, topics.Len())
	assert.Empty(t, topics.Subscriptions(1))
	assert.Empty(t, topics.Filters())
}
