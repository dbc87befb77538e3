package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdemInFlight: request lain dengan idempotency key yang sama belum selesai.
var ErrIdemInFlight = errors.New("request with the same idempotency key is in progress")

// StatusView adalah isi cache order_status.
type StatusView struct {
	OrderID       string    `json:"order_id"`
	OutletID      string    `json:"outlet_id"`
	InvoiceNo     string    `json:"invoice_no,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Cache membungkus redis untuk kebutuhan order. Redis bukan sumber kebenaran:
// Cache nil (redis dimatikan) aman dipakai dan semua method jadi no-op / miss.
type Cache struct {
	rdb redis.Cmdable
}

func NewCache(rdb redis.Cmdable) *Cache {
	if rdb == nil {
		return nil
	}
	return &Cache{rdb: rdb}
}

func StatusKey(outletID, orderID string) string {
	return fmt.Sprintf(KeyOrderStatus, outletID, orderID)
}

func (c *Cache) GetStatus(ctx context.Context, outletID, orderID string) (StatusView, bool, error) {
	if c == nil {
		return StatusView{}, false, nil
	}
	s, err := c.rdb.Get(ctx, StatusKey(outletID, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return StatusView{}, false, nil
	}
	if err != nil {
		return StatusView{}, false, err
	}
	var v StatusView
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		// isi rusak dianggap miss
		return StatusView{}, false, nil
	}
	return v, true, nil
}

// SetStatus hanya menimpa kalau v tidak lebih lama dari isi cache sekarang.
func (c *Cache) SetStatus(ctx context.Context, v StatusView) error {
	if c == nil {
		return nil
	}
	cur, ok, err := c.GetStatus(ctx, v.OutletID, v.OrderID)
	if err != nil {
		return err
	}
	if ok && cur.UpdatedAt.After(v.UpdatedAt) {
		return nil
	}
	if ok && v.InvoiceNo == "" {
		v.InvoiceNo = cur.InvoiceNo
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, StatusKey(v.OutletID, v.OrderID), b, TTLStatusCache).Err()
}

// ClaimIdempotency mengklaim key create order. Kalau key sudah selesai dipakai,
// orderID berisi order yang dulu dibuat. Kalau masih in-flight -> ErrIdemInFlight.
func (c *Cache) ClaimIdempotency(ctx context.Context, outletID, key string) (orderID string, claimed bool, err error) {
	if c == nil || key == "" {
		return "", true, nil
	}
	k := fmt.Sprintf(KeyIdemOrderCreate, outletID, key)
	ok, err := c.rdb.SetNX(ctx, k, idemPending, TTLIdemPending).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := c.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// kedaluwarsa di antara SETNX dan GET, coba klaim lagi sekali
		ok, err = c.rdb.SetNX(ctx, k, idemPending, TTLIdemPending).Result()
		return "", ok, err
	}
	if err != nil {
		return "", false, err
	}
	if v == idemPending {
		return "", false, ErrIdemInFlight
	}
	return v, false, nil
}

func (c *Cache) CompleteIdempotency(ctx context.Context, outletID, key, orderID string) error {
	if c == nil || key == "" {
		return nil
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, outletID, key), orderID, TTLIdempotency).Err()
}

// ReleaseIdempotency dipanggil kalau create gagal, supaya client boleh retry dengan key yang sama.
func (c *Cache) ReleaseIdempotency(ctx context.Context, outletID, key string) error {
	if c == nil || key == "" {
		return nil
	}
	return c.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, outletID, key)).Err()
}

// MarkProcessed -> true kalau event ini baru pertama kali diproses oleh service.
func (c *Cache) MarkProcessed(ctx context.Context, service, eventID string) (bool, error) {
	if c == nil {
		return true, nil
	}
	return c.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), "1", TTLDedup).Result()
}

// ForgetProcessed membatalkan MarkProcessed kalau handler gagal, supaya redelivery diproses lagi.
func (c *Cache) ForgetProcessed(ctx context.Context, service, eventID string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}
