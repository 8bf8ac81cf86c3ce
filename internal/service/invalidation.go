package service

import (
	"encoding/json"
	"fmt"

	mqttcommon "clinic-core/common/mqtt"

	"go.uber.org/zap"
)

// CatalogInvalidator tells other processes that a tenant's catalog changed.
type CatalogInvalidator interface {
	PublishInvalidation(tenant string) error
}

// MessageBus is the slice of the MQTT client the invalidation bus needs.
type MessageBus interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
}

// InvalidationMessage is the payload broadcast on the invalidation topic.
type InvalidationMessage struct {
	Tenant string `json:"tenant"`
	Origin string `json:"origin"`
}

// InvalidationBus broadcasts catalog invalidations over MQTT and applies
// the ones published by other processes to the local cache.
type InvalidationBus struct {
	bus    MessageBus
	topic  string
	qos    byte
	origin string
	cache  *CatalogCache
	logger *zap.Logger
}

func NewInvalidationBus(bus MessageBus, topic string, qos byte, origin string, cache *CatalogCache, logger *zap.Logger) *InvalidationBus {
	return &InvalidationBus{bus: bus, topic: topic, qos: qos, origin: origin, cache: cache, logger: logger}
}

var _ CatalogInvalidator = (*InvalidationBus)(nil)

func (b *InvalidationBus) PublishInvalidation(tenant string) error {
	payload, err := json.Marshal(InvalidationMessage{Tenant: tenant, Origin: b.origin})
	if err != nil {
		return err
	}
	if err := b.bus.Publish(b.topic, b.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish catalog invalidation for %q: %w", tenant, err)
	}
	return nil
}

// Listen subscribes to the invalidation topic.
func (b *InvalidationBus) Listen() error {
	return b.bus.Subscribe(b.topic, b.qos, b.HandleMessage)
}

// HandleMessage applies one invalidation. Messages this process published
// itself are ignored; it already invalidated locally.
func (b *InvalidationBus) HandleMessage(topic string, payload []byte) error {
	var msg InvalidationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("invalid invalidation message on %s: %w", topic, err)
	}
	if msg.Origin == b.origin {
		return nil
	}
	if msg.Tenant == "" {
		b.cache.InvalidateAll()
	} else {
		b.cache.Invalidate(msg.Tenant)
	}
	b.logger.Debug("catalog invalidated by peer",
		zap.String("tenant", msg.Tenant), zap.String("origin", msg.Origin))
	return nil
}
