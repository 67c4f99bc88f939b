package metrics

import (
	"errors"
	"path"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

// Metric names recorded by the application
const (
	ProductRegistered = "prodauth_product_registered"
	SaleInitiated     = "prodauth_sale_initiated"
	PurchaseVerified  = "prodauth_purchase_verified"
	ContractFailed    = "prodauth_contract_failed"
	QrcodeDecodeFail  = "prodauth_qrcode_decode_fail"
	TxConfirmed       = "prodauth_tx_confirmed"
	TxFailed          = "prodauth_tx_failed"
	SystemCPUUse      = "system_cpuuse"
	SystemMemUse      = "system_memuse"
	ProcessCPUUse     = "prodauth_cpuuse"
	ProcessMemUse     = "prodauth_memuse"
)

// Point is a single stored sample
type Point struct {
	Timestamp int64 `json:"timestamp"`
	Value     int64 `json:"value"`
}

var (
	mu       sync.Mutex
	storage  tstorage.Storage
	counters = map[string]int64{}
)

// InitMetrics opens the time-series storage under workdir/data/metrics.
// An empty workdir keeps everything in memory.
func InitMetrics(workdir string) error {
	mu.Lock()
	defer mu.Unlock()
	if storage != nil {
		return nil
	}
	opts := []tstorage.Option{
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(30 * 24 * time.Hour),
	}
	if workdir != "" {
		opts = append(opts, tstorage.WithDataPath(path.Join(workdir, "data", "metrics")))
	}
	s, err := tstorage.NewStorage(opts...)
	if err != nil {
		return err
	}
	storage = s
	return nil
}

func insert(name string, value int64) {
	if storage == nil {
		return
	}
	_ = storage.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: float64(value)},
	}})
}

// SetGauge records the current value of name
func SetGauge(name string, value int64) {
	mu.Lock()
	defer mu.Unlock()
	insert(name, value)
}

// Incr bumps the counter name and records its running total
func Incr(name string) int64 {
	mu.Lock()
	defer mu.Unlock()
	counters[name]++
	v := counters[name]
	insert(name, v)
	return v
}

// Counter returns the in-process total of name
func Counter(name string) int64 {
	mu.Lock()
	defer mu.Unlock()
	return counters[name]
}

// Query returns samples of name within [start, end)
func Query(name string, start, end time.Time) ([]Point, error) {
	mu.Lock()
	s := storage
	mu.Unlock()
	if s == nil {
		return nil, nil
	}
	points, err := s.Select(name, nil, start.Unix(), end.Unix())
	if errors.Is(err, tstorage.ErrNoDataPoints) {
		return []Point{}, nil
	}
	if err != nil {
		return nil, err
	}
	result := make([]Point, 0, len(points))
	for _, p := range points {
		result = append(result, Point{Timestamp: p.Timestamp, Value: int64(p.Value)})
	}
	return result, nil
}

// Close flushes and closes the storage
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}
