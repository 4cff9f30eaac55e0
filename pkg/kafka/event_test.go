package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Fields(t *testing.T) {
	type cartData struct {
		DeviceID    string `json:"device_id"`
		TotalAmount int64  `json:"total_amount"`
	}

	data := cartData{DeviceID: "dev-123", TotalAmount: 4999}
	event, err := NewEvent("storefront.cart.updated", "dev-123", "cart", "storefront-service", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "storefront.cart.updated", event.EventType)
	assert.Equal(t, "dev-123", event.AggregateID)
	assert.Equal(t, "cart", event.AggregateType)
	assert.Equal(t, EnvelopeVersion, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.Empty(t, event.CorrelationID)
	require.NoError(t, event.Validate())

	var got cartData
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, data, got)
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent("storefront.cart.updated", "dev-1", "cart", "storefront-service", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storefront.cart.updated")
}

func TestNewEvent_IDsAreUnique(t *testing.T) {
	a, err := NewEvent("storefront.cart.updated", "dev-1", "cart", "storefront-service", nil)
	require.NoError(t, err)
	b, err := NewEvent("storefront.cart.updated", "dev-1", "cart", "storefront-service", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestEvent_WireRoundTrip(t *testing.T) {
	original, err := NewEvent("storefront.wishlist.toggled", "dev-456", "wishlist", "storefront-service", map[string]bool{"added": true})
	require.NoError(t, err)
	original.WithCorrelationID("corr-abc")

	raw, err := original.Marshal()
	require.NoError(t, err)
	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, "corr-abc", restored.CorrelationID)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
	assert.WithinDuration(t, original.Timestamp, restored.Timestamp, time.Millisecond)
}

func TestEvent_WithCorrelationIDChains(t *testing.T) {
	event, err := NewEvent("storefront.branch.resolved", "dev-1", "branch", "storefront-service", nil)
	require.NoError(t, err)

	assert.Same(t, event, event.WithCorrelationID("corr-xyz"))
	assert.Equal(t, "corr-xyz", event.CorrelationID)
}

func TestEvent_Validate(t *testing.T) {
	valid := func() Event {
		return Event{EventID: "e-1", EventType: "storefront.cart.updated", AggregateID: "dev-1", Version: EnvelopeVersion, Data: json.RawMessage(`{}`)}
	}

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr string
	}{
		{name: "complete", mutate: func(*Event) {}},
		{name: "missing id", mutate: func(e *Event) { e.EventID = "" }, wantErr: "event_id"},
		{name: "missing type", mutate: func(e *Event) { e.EventType = "" }, wantErr: "event_type"},
		{name: "missing device", mutate: func(e *Event) { e.AggregateID = "" }, wantErr: "aggregate_id"},
		{name: "future envelope", mutate: func(e *Event) { e.Version = 2 }, wantErr: "version 2"},
		{name: "no payload", mutate: func(e *Event) { e.Data = nil }, wantErr: "data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvent_ValidateReportsAllMissingFields(t *testing.T) {
	err := (&Event{}).Validate()
	require.Error(t, err)
	for _, field := range []string{"event_id", "event_type", "aggregate_id", "data"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	tests := map[string]string{
		"broken json":   `{broken json`,
		"empty":         ``,
		"no event type": `{"event_id":"e-1","aggregate_id":"dev-1","version":1,"data":{}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalEvent([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestEvent_UnmarshalDataInvalid(t *testing.T) {
	event := &Event{Data: json.RawMessage(`not valid json`)}
	var target map[string]string
	require.Error(t, event.UnmarshalData(&target))
}
