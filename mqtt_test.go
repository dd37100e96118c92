package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

type fakeClient struct {
	connected  bool
	connectErr error
	publishErr error
	publishes  []publishCall
}

func (f *fakeClient) IsConnected() bool {
	return f.connected
}

func (f *fakeClient) IsConnectionOpen() bool {
	return f.connected
}

func (f *fakeClient) Connect() mqtt.Token {
	if f.connectErr == nil {
		f.connected = true
	}
	return newFakeToken(f.connectErr)
}

func (f *fakeClient) Disconnect(quiesce uint) {
	f.connected = false
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.publishes = append(f.publishes, publishCall{topic: topic, qos: qos, retained: retained, payload: payload})
	return newFakeToken(f.publishErr)
}

func (f *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return newFakeToken(nil)
}

func (f *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return newFakeToken(nil)
}

func (f *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	return newFakeToken(nil)
}

func (f *fakeClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool {
	return true
}

func (t *fakeToken) WaitTimeout(_ time.Duration) bool {
	return true
}

func (t *fakeToken) Done() <-chan struct{} {
	return t.done
}

func (t *fakeToken) Error() error {
	return t.err
}

func testPublisher(client mqtt.Client) *publisher {
	return &publisher{
		client: client,
		name:   "Bench Rig",
		cfg: mqttData{
			QoS:                 1,
			TopicPrefix:         "prefix",
			HassdiscoveryPrefix: "ha",
		},
	}
}

func TestPublishWhenConnected(t *testing.T) {
	client := &fakeClient{connected: true}
	pub := testPublisher(client)

	if sent := pub.publish(1, []uint16{10, 20, 65535}); sent != 3 {
		t.Fatalf("expected 3 publishes, got %d", sent)
	}
	if len(client.publishes) != 3 {
		t.Fatalf("expected 3 publish calls, got %d", len(client.publishes))
	}

	p := client.publishes[2]
	if p.topic != "prefix/Bench Rig/register/3/state" {
		t.Fatalf("unexpected topic: %s", p.topic)
	}
	if p.payload != "65535" || p.qos != 1 || !p.retained {
		t.Fatalf("unexpected publish: %+v", p)
	}
}

func TestPublishSkipsWhenDisconnected(t *testing.T) {
	client := &fakeClient{connected: false}
	pub := testPublisher(client)

	if sent := pub.publish(1, []uint16{1, 2}); sent != 0 {
		t.Fatalf("expected no publishes, got %d", sent)
	}
	if len(client.publishes) != 0 {
		t.Fatalf("expected no publish calls, got %d", len(client.publishes))
	}

	var none *publisher
	if sent := none.publish(1, []uint16{1}); sent != 0 {
		t.Fatalf("nil publisher published %d", sent)
	}
}

func TestPublishCountsFailures(t *testing.T) {
	client := &fakeClient{connected: true, publishErr: errors.New("broker gone")}
	pub := testPublisher(client)

	if sent := pub.publish(1, []uint16{1, 2}); sent != 0 {
		t.Fatalf("expected failed publishes to count as unsent, got %d", sent)
	}
	if len(client.publishes) != 2 {
		t.Fatalf("expected every register to be attempted, got %d", len(client.publishes))
	}
}

func TestRegisterHAPublishesOnlyWhenConnected(t *testing.T) {
	client := &fakeClient{connected: false}
	pub := testPublisher(client)

	pub.registerHA(1, 5)
	if len(client.publishes) != 0 {
		t.Fatalf("expected no publishes when disconnected, got %d", len(client.publishes))
	}

	client.connected = true
	pub.registerHA(1, 5)
	if len(client.publishes) != 5 {
		t.Fatalf("expected 5 publishes, got %d", len(client.publishes))
	}

	p := client.publishes[0]
	if p.topic != "ha/sensor/Bench Rig/1/config" {
		t.Fatalf("unexpected HA topic: %s", p.topic)
	}
	payloadBytes, ok := p.payload.([]byte)
	if !ok {
		t.Fatalf("expected []byte payload, got %T", p.payload)
	}
	payload := string(payloadBytes)
	for _, want := range []string{`"name":"Bench Rig register 1"`, `"unique_id":"bench_rig_register_1"`, `"state_topic":"prefix/Bench Rig/register/1/state"`} {
		if !strings.Contains(payload, want) {
			t.Fatalf("expected payload to contain %s, got %s", want, payload)
		}
	}
}

func TestNewPublisherDisabledWithoutHost(t *testing.T) {
	if pub := newPublisher(defaultConfig()); pub != nil {
		t.Fatalf("expected no publisher without a broker host, got %+v", pub)
	}
}
