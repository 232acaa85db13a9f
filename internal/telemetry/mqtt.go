package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/encoding/json"

	"github.com/rjboer/radarcore/internal/logging"
)

// MQTTConfig describes the broker that receives session events.
type MQTTConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	UseTLS      bool   `yaml:"use_tls"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// publisher is the part of mqtt.Client the reporter uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// MQTTReporter publishes events to <prefix>/<kind>. Capture events carry the
// summary only, never raw samples.
type MQTTReporter struct {
	client publisher
	config MQTTConfig
	logger logging.Logger
	closer func()
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "radard_" + hex.EncodeToString(b)
}

// NewMQTTReporter connects to the broker. A failed initial connection is
// logged and retried in the background by the client.
func NewMQTTReporter(cfg MQTTConfig, logger logging.Logger) *MQTTReporter {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With(logging.F("subsystem", "mqtt"))
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "radar"
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "tls"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to broker", logging.F("broker", brokerURL))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("broker connection lost, reconnecting", logging.F("error", err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(5 * time.Second) {
		if err := token.Error(); err != nil {
			logger.Warn("initial broker connection failed, retrying in background", logging.F("error", err))
		}
	} else {
		logger.Warn("broker connection timeout, retrying in background", logging.F("broker", brokerURL))
	}

	r := newMQTTReporter(client, cfg, logger)
	r.closer = func() {
		if client.IsConnected() {
			client.Disconnect(250)
		}
	}
	return r
}

func newMQTTReporter(client publisher, cfg MQTTConfig, logger logging.Logger) *MQTTReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return &MQTTReporter{client: client, config: cfg, logger: logger}
}

// Report publishes the event asynchronously. Events are dropped while the
// broker is unreachable.
func (r *MQTTReporter) Report(e Event) {
	if !r.client.IsConnected() {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Capture != nil {
		c := *e.Capture
		c.I, c.Q = nil, nil
		e.Capture = &c
	}
	data, err := json.Marshal(e)
	if err != nil {
		r.logger.Error("marshal event", logging.F("error", err))
		return
	}
	topic := r.config.TopicPrefix + "/" + string(e.Kind)
	token := r.client.Publish(topic, r.config.QoS, r.config.Retain, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			r.logger.Warn("publish failed", logging.F("topic", topic), logging.F("error", token.Error()))
		}
	}()
}

// Close disconnects from the broker.
func (r *MQTTReporter) Close() {
	if r.closer != nil {
		r.closer()
	}
}
