package notification

import (
	"context"

	"github.com/arunvm123/flashdeal/model"
)

// Event types
const (
	OrderCreated = "order_created"
)

// Publisher delivers order events to downstream consumers
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event *model.OrderEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(ctx context.Context, event *model.OrderEvent) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}
