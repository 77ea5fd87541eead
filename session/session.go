// Package session runs MQTT v5 client sessions against a broker. A session
// connects with exponential backoff, optionally probes the server with a bad
// authentication and a delayed will, publishes a fixed sequence of messages,
// harvests their acknowledgments for a bounded time and disconnects.
package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	mqttv5 "github.com/srishina/mqttv5.go"
	"github.com/srishina/mqttv5.go/config"
	"github.com/srishina/mqttv5.go/transport"
	"golang.org/x/time/rate"
)

const (
	publishTopic             = "TestUnique1234"
	publishTopicAlias uint16 = 2
	messageExpiry     uint32 = 100

	probeClientID        = "abcde"
	probeAuth            = "test"
	willTopic            = "TestWill1234"
	willPayload          = "TestWillPayload"
	willDelay     uint32 = 30

	sessionExpiry uint32 = 20
	maxPacketSize uint32 = 200
	receiveMax    uint16 = 20
	topicAliasMax uint16 = 20

	subscribeQoS     byte = 1
	disconnectReason      = "test"
)

type options struct {
	logger log.FieldLogger
	now    mqttv5.TimeFunc
	retry  []RetryOption
}

// Option ...
type Option func(*options)

// WithLogger logs the session and its engines to logger
func WithLogger(logger log.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock replaces the millisecond time source of the engines
func WithClock(now mqttv5.TimeFunc) Option {
	return func(o *options) { o.now = now }
}

// WithRetryOptions passes opts to the connection retrier
func WithRetryOptions(opts ...RetryOption) Option {
	return func(o *options) { o.retry = append(o.retry, opts...) }
}

// NewDialer returns the transport dialer for the configured broker
func NewDialer(cfg config.BrokerConfig) transport.Dialer {
	if cfg.Transport == config.TransportWebsocket {
		return &transport.WebsocketDialer{Path: cfg.WebsocketPath}
	}
	return &transport.TCPDialer{}
}

// Session owns everything one client needs to talk to the broker. It is not
// safe for concurrent use.
type Session struct {
	cfg     *config.Config
	retrier *Retrier
	log     log.FieldLogger
	now     mqttv5.TimeFunc

	topics *TopicFilters
}

// New creates a session that connects through d
func New(cfg *config.Config, d transport.Dialer, opts ...Option) (*Session, error) {
	if cfg == nil || d == nil {
		return nil, fmt.Errorf("%w: configuration and dialer are required", mqttv5.ErrBadParameter)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.StandardLogger()
	}
	if o.now == nil {
		o.now = NewClock()
	}

	retryOpts := append([]RetryOption{WithRetryLogger(o.logger)}, o.retry...)
	return &Session{
		cfg: cfg,
		retrier: NewRetrier(d, RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseBackoff: cfg.Retry.BaseBackoff,
			MaxBackoff:  cfg.Retry.MaxBackoff,
		}, retryOpts...),
		log: o.logger,
		now: o.now,
	}, nil
}

// Topics the topic filters of the latest iteration, nil before the first
func (s *Session) Topics() *TopicFilters {
	return s.topics
}

// Run performs one iteration: connect, probe, publish, harvest the
// acknowledgments and disconnect. With session.subscribe the topic filters
// are subscribed before publishing and unsubscribed after the first harvest.
// The transport is closed on return.
func (s *Session) Run(ctx context.Context) error {
	cfg := s.cfg
	logger := s.log.WithField("client_id", cfg.Client.ClientID)

	topics, err := NewTopicFilters(cfg.Client.ClientID, cfg.Session.TopicCount, cfg.Session.TopicBufferSize)
	if err != nil {
		return err
	}
	s.topics = topics

	logger.Infof("Establishing a connection to %s", s.endpoint())
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if conn != nil {
			closeConn(conn, logger)
		}
	}()

	if cfg.Session.BadAuthProbe {
		s.badAuthProbe(conn, logger)
		closeConn(conn, logger)
		conn = nil
	}
	if cfg.Session.WillProbe {
		if err := s.willProbe(ctx, logger); err != nil {
			return err
		}
	}
	if conn == nil {
		if conn, err = s.dial(ctx); err != nil {
			return err
		}
	}

	eng, err := s.newEngine(conn, NewDispatcher(logger, topics, cfg.Session.AckReason))
	if err != nil {
		return err
	}
	sessionPresent, err := eng.Connect(s.connectInfo(), nil, durationMs(cfg.Client.ConnAckTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.endpoint(), err)
	}
	logger.WithField("session_present", sessionPresent).Infof("An MQTT connection is established with %s", s.endpoint())

	if cfg.Session.Subscribe {
		if err := s.subscribe(eng, topics, logger); err != nil {
			return err
		}
	}
	if err := s.publish(ctx, eng, logger); err != nil {
		return err
	}

	logger.Info("Attempt to receive publish acks from broker")
	if err := Pump(eng, durationMs(cfg.Session.ProcessLoopTimeout)); err != nil {
		return fmt.Errorf("process loop failed: %w", err)
	}

	if cfg.Session.Subscribe {
		if err := s.unsubscribe(eng, topics, logger); err != nil {
			return err
		}
		if err := Pump(eng, durationMs(cfg.Session.ProcessLoopTimeout)); err != nil {
			return fmt.Errorf("process loop failed: %w", err)
		}
	}

	if err := eng.Disconnect(&mqttv5.Disconnect{
		Properties: &mqttv5.DisconnectProperties{
			ReasonString: disconnectReason,
			UserProperty: []mqttv5.UserProperty{{Key: "Disconnect", Value: "Disconnect"}},
		},
	}); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	logger.Infof("Disconnected from %s", s.endpoint())
	return nil
}

func (s *Session) endpoint() string {
	return net.JoinHostPort(s.cfg.Broker.Endpoint, strconv.Itoa(int(s.cfg.Broker.Port)))
}

func (s *Session) dial(ctx context.Context) (transport.Conn, error) {
	b := s.cfg.Broker
	return s.retrier.Connect(ctx, b.Endpoint, b.Port, b.SendTimeout, b.RecvTimeout)
}

func (s *Session) newEngine(conn transport.Conn, d *Dispatcher) (*mqttv5.Engine, error) {
	c := s.cfg.Client
	return mqttv5.NewEngine(conn, s.now, d.Dispatch, make([]byte, c.NetworkBufferSize),
		mqttv5.WithPublishRecords(c.OutgoingRecords, c.IncomingRecords),
		mqttv5.WithLogger(s.log),
	)
}

func (s *Session) keepAlive() uint16 {
	return uint16(s.cfg.Client.KeepAlive / time.Second)
}

func (s *Session) connectInfo() *mqttv5.Connect {
	expiry, packetSize := sessionExpiry, maxPacketSize
	receive, aliases := receiveMax, topicAliasMax
	responseInfo := true
	return &mqttv5.Connect{
		ClientID:   s.cfg.Client.ClientID,
		CleanStart: true,
		KeepAlive:  s.keepAlive(),
		Properties: &mqttv5.ConnectProperties{
			SessionExpiryInterval: &expiry,
			MaximumPacketSize:     &packetSize,
			RequestResponseInfo:   &responseInfo,
			ReceiveMaximum:        &receive,
			TopicAliasMaximum:     &aliases,
		},
	}
}

// badAuthProbe connects with an authentication method the server is not
// expected to know. Whatever the server answers is only logged.
func (s *Session) badAuthProbe(conn transport.Conn, logger log.FieldLogger) {
	eng, err := s.newEngine(conn, NewDispatcher(logger, nil, s.cfg.Session.AckReason))
	if err != nil {
		logger.WithError(err).Warn("Bad authentication probe skipped")
		return
	}
	_, err = eng.Connect(&mqttv5.Connect{
		ClientID:  s.cfg.Client.ClientID,
		KeepAlive: s.keepAlive(),
		Properties: &mqttv5.ConnectProperties{
			AuthenticationMethod: probeAuth,
			AuthenticationData:   []byte(probeAuth),
		},
	}, nil, durationMs(s.cfg.Client.ConnAckTimeout))
	if err != nil {
		logger.WithError(err).Info("Bad authentication probe refused")
		return
	}
	logger.Warn("Server accepted the bad authentication probe")
}

// willProbe connects on its own transport with a delayed will and drops the
// connection without DISCONNECT, so the server has to publish the will
func (s *Session) willProbe(ctx context.Context, logger log.FieldLogger) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer closeConn(conn, logger)

	eng, err := s.newEngine(conn, NewDispatcher(logger, nil, s.cfg.Session.AckReason))
	if err != nil {
		logger.WithError(err).Warn("Will delay probe skipped")
		return nil
	}
	delay := willDelay
	will := &mqttv5.Will{
		Topic:   willTopic,
		Payload: []byte(willPayload),
		Properties: &mqttv5.WillProperties{
			WillDelayInterval: &delay,
			UserProperty:      []mqttv5.UserProperty{{Key: "Key1", Value: "Value1"}},
		},
	}
	info := &mqttv5.Connect{ClientID: probeClientID, CleanStart: true, KeepAlive: s.keepAlive()}
	if _, err := eng.Connect(info, will, durationMs(s.cfg.Client.ConnAckTimeout)); err != nil {
		logger.WithError(err).Warn("Will delay probe connection failed")
		return nil
	}
	logger.WithField("will_topic", willTopic).Info("Will delay probe connected, dropping the connection")
	return nil
}

func (s *Session) subscribe(eng *mqttv5.Engine, topics *TopicFilters, logger log.FieldLogger) error {
	packetID := eng.NextPacketID()
	err := eng.Subscribe(&mqttv5.Subscribe{Subscriptions: topics.Subscriptions(subscribeQoS)}, packetID)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	topics.Subscribe(packetID)
	logger.WithField("packet_id", packetID).Infof("SUBSCRIBE sent for %d topic filters", topics.Len())
	return nil
}

func (s *Session) unsubscribe(eng *mqttv5.Engine, topics *TopicFilters, logger log.FieldLogger) error {
	packetID := eng.NextPacketID()
	if err := eng.Unsubscribe(&mqttv5.Unsubscribe{TopicFilters: topics.Filters()}, packetID); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	topics.Unsubscribe(packetID)
	logger.WithField("packet_id", packetID).Infof("UNSUBSCRIBE sent for %d topic filters", topics.Len())
	return nil
}

func (s *Session) publish(ctx context.Context, eng *mqttv5.Engine, logger log.FieldLogger) error {
	limit := rate.Inf
	if interval := s.cfg.Session.PublishInterval; interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	useAlias := eng.TopicAliasMaximum() >= publishTopicAlias
	for _, p := range s.publishSequence(useAlias) {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		var packetID uint16
		if p.QoSLevel > 0 {
			packetID = eng.NextPacketID()
		}
		if err := eng.Publish(p, packetID); err != nil {
			return fmt.Errorf("failed to publish %q: %w", p.Payload, err)
		}
		logger.WithFields(log.Fields{
			"packet_id": packetID,
			"qos":       p.QoSLevel,
		}).Infof("PUBLISH sent for topic %s", publishTopic)
	}
	return nil
}

// publishSequence the messages of one iteration. With aliases the first
// message registers the alias and the rest send it alone.
func (s *Session) publishSequence(useAlias bool) []*mqttv5.Publish {
	address := func(p *mqttv5.Publish, registers bool) *mqttv5.Publish {
		if p.Properties == nil {
			p.Properties = &mqttv5.PublishProperties{}
		}
		if !useAlias {
			p.TopicName = publishTopic
			return p
		}
		alias := publishTopicAlias
		p.Properties.TopicAlias = &alias
		if registers {
			p.TopicName = publishTopic
		}
		return p
	}

	expiry := messageExpiry
	return []*mqttv5.Publish{
		address(&mqttv5.Publish{
			QoSLevel: 2,
			Payload:  []byte(s.cfg.Session.Message),
			Properties: &mqttv5.PublishProperties{
				UserProperty: []mqttv5.UserProperty{{Key: "Key1", Value: "Value1"}},
			},
		}, true),
		address(&mqttv5.Publish{QoSLevel: 2, Payload: []byte("OnlyTopicAlias")}, false),
		address(&mqttv5.Publish{QoSLevel: 0, Payload: []byte("UsingQos0")}, false),
		address(&mqttv5.Publish{
			QoSLevel: 1,
			Payload:  []byte("UsingQos1"),
			Properties: &mqttv5.PublishProperties{
				CorrelationData:       []byte("test"),
				ContentType:           "test",
				MessageExpiryInterval: &expiry,
			},
		}, false),
	}
}

func closeConn(conn transport.Conn, logger log.FieldLogger) {
	if err := conn.Close(); err != nil {
		logger.WithError(err).Debug("Closing the transport failed")
	}
}

func durationMs(d time.Duration) uint32 {
	return uint32(d.Milliseconds())
}
