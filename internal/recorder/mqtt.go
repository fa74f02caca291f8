package recorder

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/broute/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/broute/internal/poller"
	"github.com/autopeer-io/broute/pkg/mqtt/topic"
)

var _ poller.Sink = (*MQTTPublisher)(nil)

// Publisher is the part of the MQTT client readings need.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error
}

// MQTTPublisher publishes every reading as JSON to {root}/power/{meterID}.
type MQTTPublisher struct {
	client  Publisher
	topic   string
	meterID string
	qos     int
}

func NewMQTTPublisher(client Publisher, topics *topic.Builder, meterID string, qos int) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		topic:   topics.Build(paths.Power, meterID),
		meterID: meterID,
		qos:     qos,
	}
}

// Topic returns the topic readings are published to.
func (p *MQTTPublisher) Topic() string {
	return p.topic
}

func (p *MQTTPublisher) Record(ctx context.Context, r poller.Reading) error {
	payload, err := ReadingPayload(p.meterID, r)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.topic, p.qos, false, payload); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}
	return nil
}

// ReadingPayload encodes a reading as
// {"meterId":"...","time":"<RFC 3339>","watts":540}.
func ReadingPayload(meterID string, r poller.Reading) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"meterId": meterID,
		"time":    r.Time.UTC().Format(time.RFC3339),
		"watts":   float64(r.Watts),
	})
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	return protojson.Marshal(s)
}

// StatusPayload encodes the agent's availability, published retained on
// {root}/online/{meterID} and used as the will message.
func StatusPayload(meterID string, online bool) []byte {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"meterId": structpb.NewStringValue(meterID),
		"online":  structpb.NewBoolValue(online),
	}}
	b, _ := protojson.Marshal(s)
	return b
}
