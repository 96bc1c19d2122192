package models

import "time"

// AggregateBucket is one fixed-width roll-up record per
// symbol/exchange/side/time-bucket, consumed by dashboards through the
// windowed aggregation cache.
type AggregateBucket struct {
	Symbol      string    `json:"symbol"`
	Exchange    Exchange  `json:"exchange"`
	Side        Side      `json:"side"`
	BucketStart time.Time `json:"bucket_start"`
	BucketWidth time.Duration `json:"bucket_width"`
	Count       int64     `json:"count"`
	TotalUSD    float64   `json:"total_usd"`
	TotalQty    float64   `json:"total_qty"`
}
