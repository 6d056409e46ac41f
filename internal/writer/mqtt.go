// internal/writer/mqtt.go
package writer

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
)

// MQTTSink publishes the telemetry JSON to a broker topic, QoS 0 — the
// stream is periodic, so a lost sample is replaced 20 ms later anyway.
//
// The broker is given as one URL: scheme mqtt/tcp, ws, wss or ssl, optional
// user:pass, and the topic as the path, e.g.
// mqtt://user:pw@broker.local:1883/uav/crsf/telemetry
type MQTTSink struct {
	client mqtt.Client
	topic  string
	now    func() time.Time
}

func NewMQTTSink(rawURL, clientID string) (*MQTTSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("mqtt: parse broker url: %w", err)
	}

	scheme := "tcp"
	switch u.Scheme {
	case "", "mqtt", "tcp":
	case "ws", "wss", "ssl":
		scheme = u.Scheme
	case "mqtts":
		scheme = "ssl"
	default:
		return nil, fmt.Errorf("mqtt: unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("mqtt: broker host missing in %q", rawURL)
	}
	port := 1883
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("mqtt: bad port %q", p)
		}
	}

	topic := "crsf/telemetry"
	if len(u.Path) > 1 {
		topic = u.Path[1:]
	}

	path := ""
	if scheme == "ws" || scheme == "wss" {
		path = "/mqtt"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d%s", scheme, host, port, path))
	opts.SetClientID(clientID)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			opts.SetPassword(pw)
		}
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", token.Error())
	}

	return &MQTTSink{client: client, topic: topic, now: time.Now}, nil
}

func (s *MQTTSink) Name() string { return "mqtt " + s.topic }

func (s *MQTTSink) Publish(snap telemetry.Snapshot) error {
	body, err := telemetry.EncodeJSON(snap, s.now())
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, 0, false, body)
	token.Wait()
	return token.Error()
}

func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
