package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateIngredient OutboxAggregateType = "ingredient"
	AggregateTimeOff    OutboxAggregateType = "time_off"
	AggregateShift      OutboxAggregateType = "shift"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateIngredient,
	AggregateTimeOff,
	AggregateShift,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType doubles as the routing key on the event exchange.
type OutboxEventType string

const (
	EventOrderSeated    OutboxEventType = "order_seated"
	EventOrderClosed    OutboxEventType = "order_closed"
	EventStockAdjusted  OutboxEventType = "stock_adjusted"
	EventStockLow       OutboxEventType = "stock_low"
	EventTimeOffDecided OutboxEventType = "time_off_decided"
	EventShiftFlagged   OutboxEventType = "shift_flagged"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderSeated,
	EventOrderClosed,
	EventStockAdjusted,
	EventStockLow,
	EventTimeOffDecided,
	EventShiftFlagged,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
