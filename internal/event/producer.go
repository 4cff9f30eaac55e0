package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topic constants for storefront domain events.
var (
	TopicCartUpdated     = pkgkafka.Topic("cart", "updated")
	TopicWishlistToggled = pkgkafka.Topic("wishlist", "toggled")
	TopicBranchResolved  = pkgkafka.Topic("branch", "resolved")
)

// Aggregate type constants.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeWishlist = "wishlist"
	AggregateTypeBranch   = "branch"
)

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront-service"

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	DeviceID    string         `json:"device_id"`
	Items       []CartItemData `json:"items"`
	ItemCount   int            `json:"item_count"`
	TotalAmount int64          `json:"total_amount"`
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// WishlistToggledData is the payload for a wishlist.toggled event.
type WishlistToggledData struct {
	DeviceID  string `json:"device_id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Added     bool   `json:"added"`
}

// BranchResolvedData is the payload for a branch.resolved event.
type BranchResolvedData struct {
	DeviceID           string `json:"device_id"`
	BranchID           string `json:"branch_id"`
	Source             string `json:"source"`
	IsManual           bool   `json:"is_manual"`
	IsServiceAvailable bool   `json:"is_service_available"`
	Pincode            string `json:"pincode,omitempty"`
}

// Producer publishes storefront domain events. A nil Publisher disables
// publishing.
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

// Enabled reports whether events are actually sent.
func (p *Producer) Enabled() bool {
	return p != nil && p.pub != nil
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, deviceID string, items []domain.CartItem, total int64) error {
	data := CartUpdatedData{
		DeviceID:    deviceID,
		Items:       make([]CartItemData, len(items)),
		TotalAmount: total,
	}
	for i, it := range items {
		data.Items[i] = CartItemData{
			ID:        it.Product.ID,
			ProductID: it.Product.ProductID,
			VariantID: it.Product.VariantID,
			Name:      it.Product.Name,
			Price:     it.Product.EffectivePrice(),
			Quantity:  it.Quantity,
		}
		data.ItemCount += it.Quantity
	}
	return p.publish(ctx, TopicCartUpdated, deviceID, AggregateTypeCart, data)
}

// PublishWishlistToggled publishes a wishlist.toggled event.
func (p *Producer) PublishWishlistToggled(ctx context.Context, data WishlistToggledData) error {
	return p.publish(ctx, TopicWishlistToggled, data.DeviceID, AggregateTypeWishlist, data)
}

// PublishBranchResolved publishes a branch.resolved event.
func (p *Producer) PublishBranchResolved(ctx context.Context, data BranchResolvedData) error {
	return p.publish(ctx, TopicBranchResolved, data.DeviceID, AggregateTypeBranch, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	if !p.Enabled() {
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.pub.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("device_id", aggregateID),
	)
	return nil
}
