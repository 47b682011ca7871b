package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_walker/internal/walk"
)

// connectMQTT connects to the broker and blocks until the connection is up.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Printf("connected to MQTT broker at %s as %s", broker, clientID)
	return client, nil
}

// publishJSON marshals v and publishes it, waiting for the broker.
func publishJSON(client mqtt.Client, topic string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal for %s: %w", topic, err)
	}
	token := client.Publish(topic, 0, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

// subscribe registers handler on topic and waits for the broker to confirm.
func subscribe(client mqtt.Client, topic string, handler func(payload []byte)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Printf("subscribed to MQTT topic %s", topic)
	return nil
}

// mqttSink publishes finished session records (retained) so late
// subscribers such as the console still see the last walk.
type mqttSink struct {
	client mqtt.Client
	topic  string
}

func (s *mqttSink) Save(_ context.Context, rec *walk.Record) error {
	return publishJSON(s.client, s.topic, true, rec)
}
