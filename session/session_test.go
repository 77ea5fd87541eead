package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	mqttv5 "github.com/srishina/mqttv5.go"
	"github.com/srishina/mqttv5.go/config"
	"github.com/srishina/mqttv5.go/internal/brokertest"
	"github.com/srishina/mqttv5.go/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Client.ClientID = "testClient"
	cfg.Broker.RecvTimeout = 20 * time.Millisecond
	cfg.Session.ProcessLoopTimeout = 300 * time.Millisecond
	cfg.Session.IterationDelay = 0
	return cfg
}

func withoutProbes(cfg *config.Config) *config.Config {
	cfg.Session.BadAuthProbe = false
	cfg.Session.WillProbe = false
	return cfg
}

func aliasConnAck() brokertest.Option {
	aliases := uint16(20)
	return brokertest.WithConnAck(&mqttv5.ConnAck{
		Properties: &mqttv5.ConnAckProperties{TopicAliasMaximum: &aliases},
	})
}

func newTestSession(t *testing.T, cfg *config.Config, d transport.Dialer) (*Session, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	noSleep := func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	s, err := New(cfg, d, WithLogger(logger), WithRetryOptions(WithSleep(noSleep)))
	require.NoError(t, err)
	return s, hook
}

func messages(hook *test.Hook) []string {
	var msgs []string
	for _, e := range hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

// countingDialer lets the first successes dials through to inner and counts
// how many of those connections get closed
type countingDialer struct {
	inner     *brokertest.Dialer
	successes int

	mu     sync.Mutex
	opened int
	closed int
}

func (d *countingDialer) Dial(ctx context.Context, endpoint string, port uint16, sendTimeout, recvTimeout time.Duration) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened >= d.successes {
		return nil, brokertest.ErrRefused
	}
	conn, err := d.inner.Dial(ctx, endpoint, port, sendTimeout, recvTimeout)
	if err != nil {
		return nil, err
	}
	d.opened++
	return &countedConn{Conn: conn, d: d}, nil
}

func (d *countingDialer) counts() (opened, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened, d.closed
}

type countedConn struct {
	transport.Conn
	d *countingDialer
}

func (c *countedConn) Close() error {
	c.d.mu.Lock()
	c.d.closed++
	c.d.mu.Unlock()
	return c.Conn.Close()
}

func TestNewBadParameter(t *testing.T) {
	_, err := New(nil, &brokertest.Dialer{})
	assert.ErrorIs(t, err, mqttv5.ErrBadParameter)

	_, err = New(testConfig(), nil)
	assert.ErrorIs(t, err, mqttv5.ErrBadParameter)

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 0
	_, err = New(cfg, &brokertest.Dialer{})
	assert.ErrorContains(t, err, "retry.max_attempts")

	cfg = testConfig()
	cfg.Broker.RecvTimeout = 0
	_, err = New(cfg, &brokertest.Dialer{})
	assert.ErrorContains(t, err, "broker.recv_timeout")
}

func TestRun(t *testing.T) {
	d := &brokertest.Dialer{
		Options: func(n int) []brokertest.Option {
			switch n {
			case 0:
				return []brokertest.Option{brokertest.WithConnAck(&mqttv5.ConnAck{
					ReasonCode: mqttv5.ConnAckReasonCodeBadAuthMethod,
				})}
			case 2:
				return []brokertest.Option{aliasConnAck()}
			}
			return nil
		},
	}
	defer d.Close()

	s, hook := newTestSession(t, testConfig(), d)
	require.NoError(t, s.Run(context.Background()))

	brokers := d.Brokers()
	require.Len(t, brokers, 3, "bad auth probe, will probe and the real connection")

	// bad authentication probe
	received := brokers[0].WaitFor(1, time.Second)
	require.Len(t, received, 1)
	connect, ok := received[0].(*mqttv5.Connect)
	require.True(t, ok)
	assert.Equal(t, "testClient", connect.ClientID)
	require.NotNil(t, connect.Properties)
	assert.Equal(t, "test", connect.Properties.AuthenticationMethod)
	assert.Equal(t, []byte("test"), connect.Properties.AuthenticationData)

	// will delay probe, dropped without DISCONNECT
	received = brokers[1].WaitFor(2, 100*time.Millisecond)
	require.Len(t, received, 1)
	connect, ok = received[0].(*mqttv5.Connect)
	require.True(t, ok)
	assert.Equal(t, "abcde", connect.ClientID)
	assert.True(t, connect.CleanStart)
	require.NotNil(t, connect.Will)
	assert.Equal(t, "TestWill1234", connect.Will.Topic)
	assert.Equal(t, []byte("TestWillPayload"), connect.Will.Payload)
	require.NotNil(t, connect.Will.Properties)
	assert.Equal(t, uint32(30), *connect.Will.Properties.WillDelayInterval)
	assert.Equal(t, []mqttv5.UserProperty{{Key: "Key1", Value: "Value1"}}, connect.Will.Properties.UserProperty)

	// CONNECT, four PUBLISH, two PUBREL and DISCONNECT
	received = brokers[2].WaitFor(8, time.Second)
	require.Len(t, received, 8)

	connect, ok = received[0].(*mqttv5.Connect)
	require.True(t, ok)
	assert.Equal(t, "testClient", connect.ClientID)
	assert.Equal(t, uint16(60), connect.KeepAlive)
	require.NotNil(t, connect.Properties)
	assert.Equal(t, uint32(20), *connect.Properties.SessionExpiryInterval)
	assert.Equal(t, uint32(200), *connect.Properties.MaximumPacketSize)
	assert.Equal(t, uint16(20), *connect.Properties.ReceiveMaximum)
	assert.Equal(t, uint16(20), *connect.Properties.TopicAliasMaximum)
	assert.True(t, *connect.Properties.RequestResponseInfo)

	var publishes []*mqttv5.Publish
	var pubRels []*mqttv5.PubRel
	for _, p := range received {
		switch pkt := p.(type) {
		case *mqttv5.Publish:
			publishes = append(publishes, pkt)
		case *mqttv5.PubRel:
			pubRels = append(pubRels, pkt)
		}
	}
	require.Len(t, publishes, 4)
	assert.Equal(t, "TestUnique1234", publishes[0].TopicName)
	assert.Equal(t, byte(2), publishes[0].QoSLevel)
	assert.Equal(t, []byte("Hello World!"), publishes[0].Payload)
	assert.Equal(t, uint16(2), *publishes[0].Properties.TopicAlias)
	assert.Equal(t, []mqttv5.UserProperty{{Key: "Key1", Value: "Value1"}}, publishes[0].Properties.UserProperty)

	assert.Empty(t, publishes[1].TopicName)
	assert.Equal(t, []byte("OnlyTopicAlias"), publishes[1].Payload)
	assert.Equal(t, byte(0), publishes[2].QoSLevel)
	assert.Equal(t, []byte("UsingQos0"), publishes[2].Payload)

	assert.Equal(t, byte(1), publishes[3].QoSLevel)
	assert.Equal(t, "test", publishes[3].Properties.ContentType)
	assert.Equal(t, []byte("test"), publishes[3].Properties.CorrelationData)
	assert.Equal(t, uint32(100), *publishes[3].Properties.MessageExpiryInterval)

	require.Len(t, pubRels, 2)
	for _, pubRel := range pubRels {
		require.NotNil(t, pubRel.Properties)
		assert.Equal(t, "test", pubRel.Properties.ReasonString)
	}

	disconnect, ok := received[7].(*mqttv5.Disconnect)
	require.True(t, ok)
	require.NotNil(t, disconnect.Properties)
	assert.Equal(t, "test", disconnect.Properties.ReasonString)
	assert.Equal(t, []mqttv5.UserProperty{{Key: "Disconnect", Value: "Disconnect"}}, disconnect.Properties.UserProperty)

	msgs := messages(hook)
	assert.Contains(t, msgs, "Bad authentication probe refused")
	assert.Contains(t, msgs, "PUBACK received")
	assert.Contains(t, msgs, "PUBCOMP received")
	assert.Contains(t, msgs, "Disconnected from localhost:8883")
}

func TestRunWithoutTopicAliases(t *testing.T) {
	d := &brokertest.Dialer{}
	defer d.Close()

	s, _ := newTestSession(t, withoutProbes(testConfig()), d)
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1, d.Dials())

	var publishes []*mqttv5.Publish
	for _, p := range d.Brokers()[0].WaitFor(8, time.Second) {
		if pkt, ok := p.(*mqttv5.Publish); ok {
			publishes = append(publishes, pkt)
		}
	}
	require.Len(t, publishes, 4)
	for _, p := range publishes {
		assert.Equal(t, "TestUnique1234", p.TopicName)
		assert.True(t, p.Properties == nil || p.Properties.TopicAlias == nil)
	}
}

func TestRunSubscribe(t *testing.T) {
	d := &brokertest.Dialer{Options: func(int) []brokertest.Option {
		return []brokertest.Option{aliasConnAck()}
	}}
	defer d.Close()

	cfg := withoutProbes(testConfig())
	cfg.Session.Subscribe = true
	s, hook := newTestSession(t, cfg, d)
	require.NoError(t, s.Run(context.Background()))

	// CONNECT, SUBSCRIBE, 4 PUBLISH, 2 PUBREL, UNSUBSCRIBE, DISCONNECT
	received := d.Brokers()[0].WaitFor(10, time.Second)
	require.Len(t, received, 10)
	subscribe, ok := received[1].(*mqttv5.Subscribe)
	require.True(t, ok)
	require.Len(t, subscribe.Subscriptions, 3)
	assert.Equal(t, "testClient/example/topic2", subscribe.Subscriptions[2].TopicFilter)

	unsubscribe, ok := received[8].(*mqttv5.Unsubscribe)
	require.True(t, ok)
	assert.Equal(t, []string{
		"testClient/example/topic0",
		"testClient/example/topic1",
		"testClient/example/topic2",
	}, unsubscribe.TopicFilters)
	assert.NotEqual(t, subscribe.PacketID, unsubscribe.PacketID)

	records := s.Topics().Records()
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, TopicUnsubscribed, r.Status, r.Filter)
	}

	msgs := messages(hook)
	assert.Contains(t, msgs, "Subscribed to the topic testClient/example/topic0")
	assert.Contains(t, msgs, "Unsubscribed from the topic testClient/example/topic2")
}

func TestRunClosesEveryConnection(t *testing.T) {
	inner := &brokertest.Dialer{}
	defer inner.Close()
	d := &countingDialer{inner: inner, successes: 10}

	s, _ := newTestSession(t, testConfig(), d)
	require.NoError(t, s.Run(context.Background()))

	opened, closed := d.counts()
	assert.Equal(t, 3, opened)
	assert.Equal(t, 3, closed)
}

func TestRunWillProbeDialFailureClosesConnection(t *testing.T) {
	inner := &brokertest.Dialer{}
	defer inner.Close()
	d := &countingDialer{inner: inner, successes: 1}

	cfg := withoutProbes(testConfig())
	cfg.Session.WillProbe = true
	cfg.Retry.MaxAttempts = 1
	s, _ := newTestSession(t, cfg, d)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, brokertest.ErrRefused)

	opened, closed := d.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed, "the first connection is closed when the will probe cannot dial")
}

func TestRunRetriesExhausted(t *testing.T) {
	d := &brokertest.Dialer{Failures: 100}

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 2
	s, _ := newTestSession(t, cfg, d)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, d.Dials())
	assert.Empty(t, d.Brokers())
}

func TestRunRetriesThenConnects(t *testing.T) {
	d := &brokertest.Dialer{Failures: 2}
	defer d.Close()

	s, _ := newTestSession(t, withoutProbes(testConfig()), d)
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 3, d.Dials())
	assert.Len(t, d.Brokers(), 1)
}

func TestRunProcessLoopFailure(t *testing.T) {
	// the server goes away after the CONNECT and the four publishes
	d := &brokertest.Dialer{Options: func(int) []brokertest.Option {
		return []brokertest.Option{aliasConnAck(), brokertest.CloseAfter(5)}
	}}
	defer d.Close()

	s, _ := newTestSession(t, withoutProbes(testConfig()), d)
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, mqttv5.ErrRecvFailed) || errors.Is(err, mqttv5.ErrSendFailed), err.Error())

	received := d.Brokers()[0].Received()
	for _, p := range received {
		_, isDisconnect := p.(*mqttv5.Disconnect)
		assert.False(t, isDisconnect)
	}
}

func TestRunConnectRefused(t *testing.T) {
	d := &brokertest.Dialer{Options: func(int) []brokertest.Option {
		return []brokertest.Option{brokertest.WithConnAck(&mqttv5.ConnAck{
			ReasonCode: mqttv5.ConnAckReasonCodeNotAuthorized,
		})}
	}}
	defer d.Close()

	s, _ := newTestSession(t, withoutProbes(testConfig()), d)
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, mqttv5.ErrServerRefused)
}

func TestLoop(t *testing.T) {
	d := &brokertest.Dialer{}
	defer d.Close()

	cfg := withoutProbes(testConfig())
	cfg.Session.IterationDelay = 10 * time.Millisecond
	cfg.Session.ProcessLoopTimeout = 50 * time.Millisecond
	s, hook := newTestSession(t, cfg, d)

	require.NoError(t, s.Loop(context.Background(), 2))
	assert.Equal(t, 2, d.Dials())

	completed := 0
	for _, msg := range messages(hook) {
		if msg == "Demo completed successfully" {
			completed++
		}
	}
	assert.Equal(t, 2, completed)
}

func TestLoopUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &brokertest.Dialer{Options: func(n int) []brokertest.Option {
		if n == 2 {
			cancel()
		}
		return nil
	}}
	defer d.Close()

	cfg := withoutProbes(testConfig())
	cfg.Session.ProcessLoopTimeout = 50 * time.Millisecond
	s, _ := newTestSession(t, cfg, d)

	err := s.Loop(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, d.Dials())
}

func TestNewClock(t *testing.T) {
	now := NewClock()
	first := now()
	assert.Less(t, first, uint32(1000))
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, now(), first+5)
}

func TestNewDialer(t *testing.T) {
	cfg := config.Default().Broker
	assert.IsType(t, &transport.TCPDialer{}, NewDialer(cfg))

	cfg.Transport = config.TransportWebsocket
	dialer, ok := NewDialer(cfg).(*transport.WebsocketDialer)
	require.True(t, ok)
	assert.Equal(t, "/mqtt", dialer.Path)
}
