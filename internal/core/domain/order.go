package domain

import (
	"strconv"
	"time"
)

type OrderStatus int

const (
	OrderStatusUnpaid    OrderStatus = 1
	OrderStatusPaid      OrderStatus = 2
	OrderStatusConsumed  OrderStatus = 3
	OrderStatusCancelled OrderStatus = 4
)

// VoucherOrder is a persisted seckill purchase. One row per (VoucherID, UserID).
type VoucherOrder struct {
	ID        int64
	UserID    int64
	VoucherID int64
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PendingOrder is an admitted purchase waiting in the order stream.
// EntryID is the stream entry id and is empty until the entry has been read back.
type PendingOrder struct {
	EntryID   string
	OrderID   int64
	UserID    int64
	VoucherID int64
}

// OrderEntry is a raw entry delivered from the order stream.
// Deliveries is how many times the group has handed the entry out, when known.
type OrderEntry struct {
	ID         string
	Values     map[string]interface{}
	Deliveries int64
}

// ParsePendingOrder extracts the order fields written by the admission script.
func ParsePendingOrder(e OrderEntry) (PendingOrder, error) {
	orderID, err := int64Field(e.Values, "id")
	if err != nil {
		return PendingOrder{}, err
	}
	userID, err := int64Field(e.Values, "userId")
	if err != nil {
		return PendingOrder{}, err
	}
	voucherID, err := int64Field(e.Values, "voucherId")
	if err != nil {
		return PendingOrder{}, err
	}
	return PendingOrder{EntryID: e.ID, OrderID: orderID, UserID: userID, VoucherID: voucherID}, nil
}

func int64Field(values map[string]interface{}, name string) (int64, error) {
	raw, ok := values[name]
	if !ok {
		return 0, &MalformedEntryError{Field: name, Reason: "missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return 0, &MalformedEntryError{Field: name, Reason: "not a string"}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &MalformedEntryError{Field: name, Reason: "not a positive integer: " + s}
	}
	return n, nil
}
