package domain

import "time"

// SeckillVoucher is the stock-limited, time-boxed part of a voucher.
type SeckillVoucher struct {
	VoucherID int64     `json:"voucherId"`
	Stock     int       `json:"stock"`
	BeginTime time.Time `json:"beginTime"`
	EndTime   time.Time `json:"endTime"`
	CreatedAt time.Time `json:"createTime"`
	UpdatedAt time.Time `json:"updateTime"`
}

// CheckWindow reports ErrNotYetOpen or ErrEnded when now is outside [BeginTime, EndTime].
func (v SeckillVoucher) CheckWindow(now time.Time) error {
	if now.Before(v.BeginTime) {
		return ErrNotYetOpen
	}
	if now.After(v.EndTime) {
		return ErrEnded
	}
	return nil
}

// ReserveResult is the outcome of the atomic admission script.
type ReserveResult int

const (
	ReserveAccepted          ReserveResult = 0
	ReserveOutOfStock        ReserveResult = 1
	ReserveDuplicatePurchase ReserveResult = 2
)

func (r ReserveResult) String() string {
	switch r {
	case ReserveAccepted:
		return "accepted"
	case ReserveOutOfStock:
		return "out_of_stock"
	case ReserveDuplicatePurchase:
		return "duplicate_purchase"
	default:
		return "unknown"
	}
}
