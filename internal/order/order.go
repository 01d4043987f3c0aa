package order

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Side is the direction of an order
type Side uint8

const (
	Buy Side = iota
	Sell
)

// String returns the side as a string
func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Status is the lifecycle state of an order
type Status uint8

const (
	Pending Status = iota
	Filled
	Cancelled
	Rejected
)

// String returns the status as a string
func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// SymbolLen is the fixed size of the inline symbol field, NUL terminator included.
const SymbolLen = 16

// EncodedSize is the size of the binary order image in bytes.
const EncodedSize = 44

// Order is a fixed-layout buy/sell intent. It is a plain value type: copying
// it through the ring and batcher duplicates all fields, the symbol stays an
// inline NUL-terminated byte array so the hot path never touches the heap.
type Order struct {
	ID          uint64
	TimestampNS uint64
	Symbol      [SymbolLen]byte
	Quantity    uint32
	PriceCents  uint32
	Side        Side
	Status      Status
	Reserved    uint16
}

// New creates an order with the current timestamp and Pending status.
// The symbol is truncated to 15 characters, price is rounded half-up to cents.
func New(id uint64, symbol string, side Side, price float64, quantity uint32) Order {
	o := Order{
		ID:          id,
		TimestampNS: uint64(time.Now().UnixNano()),
		Quantity:    quantity,
		Side:        side,
		Status:      Pending,
	}
	o.SetSymbol(symbol)
	o.SetPrice(price)
	return o
}

// NewBuy creates a buy order
func NewBuy(id uint64, symbol string, price float64, quantity uint32) Order {
	return New(id, symbol, Buy, price, quantity)
}

// NewSell creates a sell order
func NewSell(id uint64, symbol string, price float64, quantity uint32) Order {
	return New(id, symbol, Sell, price, quantity)
}

// SetSymbol copies sym into the fixed symbol field, truncating to 15 bytes
func (o *Order) SetSymbol(sym string) {
	o.Symbol = [SymbolLen]byte{}
	n := copy(o.Symbol[:SymbolLen-1], sym)
	o.Symbol[n] = 0
}

// SymbolString returns the symbol up to its NUL terminator
func (o *Order) SymbolString() string {
	for i, b := range o.Symbol {
		if b == 0 {
			return string(o.Symbol[:i])
		}
	}
	return string(o.Symbol[:SymbolLen-1])
}

// SetPrice stores price as cents, rounded half-up
func (o *Order) SetPrice(price float64) {
	o.PriceCents = uint32(price*100.0 + 0.5)
}

// Price returns the price in currency units
func (o *Order) Price() float64 {
	return float64(o.PriceCents) / 100.0
}

// ValueCents returns quantity * price in cents
func (o *Order) ValueCents() uint64 {
	return uint64(o.Quantity) * uint64(o.PriceCents)
}

// Value returns quantity * price in currency units
func (o *Order) Value() float64 {
	return float64(o.ValueCents()) / 100.0
}

// IsValid reports whether all required fields are populated
func (o *Order) IsValid() bool {
	return o.ID != 0 && o.Quantity > 0 && o.PriceCents > 0 &&
		o.Symbol[0] != 0 && o.Reserved == 0
}

// IsBuy reports whether the order is a buy
func (o *Order) IsBuy() bool { return o.Side == Buy }

// IsSell reports whether the order is a sell
func (o *Order) IsSell() bool { return o.Side == Sell }

// IsPending reports whether the order is still pending
func (o *Order) IsPending() bool { return o.Status == Pending }

// String renders the order for logs and debugging
func (o *Order) String() string {
	return fmt.Sprintf("Order[%d] %s %s %d@%.2f status=%s ts=%d",
		o.ID, o.SymbolString(), o.Side, o.Quantity, o.Price(), o.Status, o.TimestampNS)
}

// ErrShortBuffer is returned by Decode when the input is smaller than EncodedSize.
var ErrShortBuffer = errors.New("order: buffer smaller than encoded size")

// Encode writes the fixed 44-byte little-endian image of the order
func (o *Order) Encode() [EncodedSize]byte {
	var buf [EncodedSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], o.ID)
	binary.LittleEndian.PutUint64(buf[8:16], o.TimestampNS)
	copy(buf[16:32], o.Symbol[:])
	binary.LittleEndian.PutUint32(buf[32:36], o.Quantity)
	binary.LittleEndian.PutUint32(buf[36:40], o.PriceCents)
	buf[40] = byte(o.Side)
	buf[41] = byte(o.Status)
	binary.LittleEndian.PutUint16(buf[42:44], o.Reserved)
	return buf
}

// Decode reads an order back from its binary image
func Decode(buf []byte) (Order, error) {
	if len(buf) < EncodedSize {
		return Order{}, ErrShortBuffer
	}
	var o Order
	o.ID = binary.LittleEndian.Uint64(buf[0:8])
	o.TimestampNS = binary.LittleEndian.Uint64(buf[8:16])
	copy(o.Symbol[:], buf[16:32])
	o.Quantity = binary.LittleEndian.Uint32(buf[32:36])
	o.PriceCents = binary.LittleEndian.Uint32(buf[36:40])
	o.Side = Side(buf[40])
	o.Status = Status(buf[41])
	o.Reserved = binary.LittleEndian.Uint16(buf[42:44])
	return o, nil
}
