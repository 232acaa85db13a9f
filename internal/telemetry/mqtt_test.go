package telemetry

import (
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/encoding/json"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	msgs      []published
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic, qos, retained, payload.([]byte)})
	return doneToken{}
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func TestMQTTReporterTopicsAndPayload(t *testing.T) {
	pub := &fakePublisher{connected: true}
	r := newMQTTReporter(pub, MQTTConfig{TopicPrefix: "lab/radar", QoS: 1, Retain: true}, nil)

	r.Report(Event{Kind: KindMode, Mode: "generator"})
	r.Report(captureEvent(1000))

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	if pub.msgs[0].topic != "lab/radar/mode" || pub.msgs[0].qos != 1 || !pub.msgs[0].retain {
		t.Fatalf("unexpected first publish %+v", pub.msgs[0])
	}
	if pub.msgs[1].topic != "lab/radar/capture" {
		t.Fatalf("unexpected capture topic %q", pub.msgs[1].topic)
	}
	var e Event
	if err := json.Unmarshal(pub.msgs[1].payload, &e); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if e.Capture == nil || e.Capture.Samples != 1000 || e.Capture.ToneKHz != 5000 {
		t.Fatalf("unexpected capture payload %+v", e.Capture)
	}
	if strings.Contains(string(pub.msgs[1].payload), `"i"`) {
		t.Fatalf("capture payload carries raw samples: %s", pub.msgs[1].payload)
	}
}

func TestMQTTReporterDropsWhileDisconnected(t *testing.T) {
	pub := &fakePublisher{}
	r := newMQTTReporter(pub, MQTTConfig{TopicPrefix: "radar"}, nil)
	r.Report(Event{Kind: KindAck, Retval: "ACK"})
	if len(pub.msgs) != 0 {
		t.Fatalf("published while disconnected")
	}
	r.Close()
}
