package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

const archiveKeySeparator = "|"

type archiveMemFile struct {
	buffer *bytes.Buffer
}

func newArchiveMemFile() *archiveMemFile {
	return &archiveMemFile{buffer: &bytes.Buffer{}}
}

func (m *archiveMemFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *archiveMemFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *archiveMemFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *archiveMemFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *archiveMemFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *archiveMemFile) Close() error                              { return nil }
func (m *archiveMemFile) Bytes() []byte                             { return m.buffer.Bytes() }

// eventRecord is the parquet schema for archived liquidation events.
type eventRecord struct {
	Exchange  string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventTime int64   `parquet:"name=event_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Quantity  float64 `parquet:"name=quantity, type=DOUBLE"`
	ValueUSD  float64 `parquet:"name=value_usd, type=DOUBLE"`
}

// cascadeRecord is the parquet schema for archived cascade assessments.
type cascadeRecord struct {
	Symbol      string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	WindowEnd   int64   `parquet:"name=window_end, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	CascadeType string  `parquet:"name=cascade_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Composite   float64 `parquet:"name=composite, type=DOUBLE"`
	EventCount  int32   `parquet:"name=event_count, type=INT32"`
	TotalValue  float64 `parquet:"name=total_value_usd, type=DOUBLE"`
	LongCount   int32   `parquet:"name=long_count, type=INT32"`
	ShortCount  int32   `parquet:"name=short_count, type=INT32"`
	Exchanges   string  `parquet:"name=exchanges, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ArchiveWriter persists significant liquidation events and triggered cascade
// assessments to S3 as snappy-compressed parquet, partitioned by exchange,
// symbol and date. Small fills are not worth object storage round trips and
// are filtered at intake.
type ArchiveWriter struct {
	cfg      *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
	bucket   string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	running  bool
	mu       sync.Mutex

	queue     chan models.LiquidationEvent
	buffer    map[string][]models.LiquidationEvent
	lastFlush map[string]time.Time

	cascadeQueue     chan models.CascadeRiskAssessment
	cascadeBuffer    []models.CascadeRiskAssessment
	lastCascadeFlush time.Time
}

// NewArchiveWriter initializes the S3 client and buffering structures.
func NewArchiveWriter(cfg *appconfig.Config) (*ArchiveWriter, error) {
	log := logger.GetLogger()
	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("s3 storage is disabled")
	}

	bucket, err := normalizeBucketName(cfg.Storage.S3.Bucket)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	w := &ArchiveWriter{
		cfg:          cfg,
		s3Client:     s3Client,
		log:          log,
		bucket:       bucket,
		wg:           &sync.WaitGroup{},
		queue:        make(chan models.LiquidationEvent, cfg.Storage.S3.MaxBufferSize*2),
		buffer:       make(map[string][]models.LiquidationEvent),
		lastFlush:    make(map[string]time.Time),
		cascadeQueue: make(chan models.CascadeRiskAssessment, cfg.Storage.S3.MaxBufferSize),
	}

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":     bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("archive writer initialized")

	return w, nil
}

func normalizeBucketName(raw string) (string, error) {
	bucket := strings.TrimSpace(raw)
	if bucket == "" {
		return "", fmt.Errorf("s3 bucket not configured")
	}
	return bucket, nil
}

// Offer enqueues a significant event without blocking. Usable as an engine
// event sink.
func (w *ArchiveWriter) Offer(ev models.LiquidationEvent) {
	if ev.ValueUSD < w.cfg.Storage.S3.SignificantValueUSD {
		return
	}
	select {
	case w.queue <- ev:
	default:
	}
}

// PublishAssessment enqueues a triggered cascade assessment without blocking.
// Satisfies AssessmentSink.
func (w *ArchiveWriter) PublishAssessment(_ context.Context, a models.CascadeRiskAssessment) error {
	if a.CascadeType == models.CascadeNone {
		return nil
	}
	select {
	case w.cascadeQueue <- a:
	default:
	}
	return nil
}

// Start launches the ingestion and flush workers.
func (w *ArchiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.buffer = make(map[string][]models.LiquidationEvent)
	w.lastFlush = make(map[string]time.Time)
	w.mu.Unlock()

	w.wg.Add(2)
	go w.worker()
	go w.flushWorker()

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flush_interval": w.cfg.Storage.S3.FlushInterval.String(),
		"max_buffer":     w.cfg.Storage.S3.MaxBufferSize,
	}).Info("archive writer started")
	return nil
}

// Stop terminates the workers and flushes remaining data.
func (w *ArchiveWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.flushAll("stop")
	w.flushCascades(true)
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

func (w *ArchiveWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-w.queue:
			w.add(ev)
		case a := <-w.cascadeQueue:
			w.addCascade(a)
		}
	}
}

func (w *ArchiveWriter) flushWorker() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Storage.S3.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flushTimedOut()
			w.flushCascades(false)
		}
	}
}

func (w *ArchiveWriter) addCascade(a models.CascadeRiskAssessment) {
	w.mu.Lock()
	if len(w.cascadeBuffer) == 0 {
		w.lastCascadeFlush = time.Now()
	}
	w.cascadeBuffer = append(w.cascadeBuffer, a)
	full := len(w.cascadeBuffer) >= w.cfg.Storage.S3.MaxBufferSize
	w.mu.Unlock()

	if full {
		w.flushCascades(true)
	}
}

func (w *ArchiveWriter) flushCascades(force bool) {
	w.mu.Lock()
	if len(w.cascadeBuffer) == 0 ||
		(!force && time.Since(w.lastCascadeFlush) < w.cfg.Storage.S3.FlushInterval) {
		w.mu.Unlock()
		return
	}
	entries := w.cascadeBuffer
	w.cascadeBuffer = nil
	w.mu.Unlock()

	batchTime := entries[len(entries)-1].WindowEnd.UTC()
	data, err := createCascadeParquet(entries)
	if err != nil {
		w.log.WithComponent("archive_writer").WithError(err).Error("failed to create parquet for cascade batch")
		return
	}

	objKey := w.cascadeObjectKey(batchTime)
	if err := w.upload(objKey, data); err != nil {
		w.log.WithComponent("archive_writer").WithError(err).WithFields(logger.Fields{
			"s3_key": objKey,
		}).Error("failed to upload cascade batch")
		w.mu.Lock()
		merged := append(entries, w.cascadeBuffer...)
		if max := w.cfg.Storage.S3.MaxBufferSize * 2; len(merged) > max {
			merged = merged[len(merged)-max:]
		}
		w.cascadeBuffer = merged
		w.lastCascadeFlush = time.Now()
		w.mu.Unlock()
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"s3_key":  objKey,
		"records": len(entries),
		"bytes":   len(data),
	}).Info("cascade batch uploaded")
}

func createCascadeParquet(entries []models.CascadeRiskAssessment) ([]byte, error) {
	mf := newArchiveMemFile()
	pw, err := writer.NewParquetWriter(mf, new(cascadeRecord), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, a := range entries {
		venues := make([]string, 0, len(a.Exchanges))
		for _, ex := range a.Exchanges {
			venues = append(venues, string(ex))
		}
		rec := cascadeRecord{
			Symbol:      strings.ToUpper(a.Symbol),
			WindowEnd:   a.WindowEnd.UnixMilli(),
			CascadeType: string(a.CascadeType),
			Composite:   a.Composite,
			EventCount:  int32(a.EventCount),
			TotalValue:  a.TotalValue,
			LongCount:   int32(a.LongCount),
			ShortCount:  int32(a.ShortCount),
			Exchanges:   strings.Join(venues, ","),
		}
		if err := pw.Write(rec); err != nil {
			return nil, err
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mf.Bytes(), nil
}

func (w *ArchiveWriter) cascadeObjectKey(ts time.Time) string {
	ts = ts.UTC()
	return filepath.ToSlash(filepath.Join(
		"cascades",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("cascades_%s_%s.parquet", ts.Format("20060102150405"), uuid.NewString()[:8]),
	))
}

func (w *ArchiveWriter) add(ev models.LiquidationEvent) {
	key := bufferKey(string(ev.Exchange), ev.Symbol)

	w.mu.Lock()
	w.buffer[key] = append(w.buffer[key], ev)
	if _, ok := w.lastFlush[key]; !ok {
		w.lastFlush[key] = time.Now()
	}
	shouldFlush := len(w.buffer[key]) >= w.cfg.Storage.S3.MaxBufferSize
	w.mu.Unlock()

	if shouldFlush {
		w.flushKey(key)
	}
}

func (w *ArchiveWriter) flushTimedOut() {
	now := time.Now()
	interval := w.cfg.Storage.S3.FlushInterval

	w.mu.Lock()
	keys := make([]string, 0, len(w.buffer))
	for key, entries := range w.buffer {
		if len(entries) == 0 {
			continue
		}
		if now.Sub(w.lastFlush[key]) >= interval {
			keys = append(keys, key)
		}
	}
	w.mu.Unlock()

	for _, key := range keys {
		w.flushKey(key)
	}
}

func (w *ArchiveWriter) flushAll(reason string) {
	w.mu.Lock()
	keys := make([]string, 0, len(w.buffer))
	for key, entries := range w.buffer {
		if len(entries) > 0 {
			keys = append(keys, key)
		}
	}
	w.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flushed_buffers": len(keys),
		"reason":          reason,
	}).Info("flushing archive buffers")

	for _, key := range keys {
		w.flushKey(key)
	}
}

func (w *ArchiveWriter) flushKey(key string) {
	w.mu.Lock()
	entries := w.buffer[key]
	if len(entries) == 0 {
		w.mu.Unlock()
		return
	}
	delete(w.buffer, key)
	delete(w.lastFlush, key)
	w.mu.Unlock()

	parts := strings.SplitN(key, archiveKeySeparator, 2)
	exchange, symbol := parts[0], ""
	if len(parts) > 1 {
		symbol = parts[1]
	}

	batchTime := time.Now().UTC()
	for _, ev := range entries {
		if ts := ev.Time(); ts.After(batchTime) {
			batchTime = ts
		}
	}

	data, err := createParquet(entries)
	if err != nil {
		w.log.WithComponent("archive_writer").WithError(err).Error("failed to create parquet for event batch")
		return
	}

	objKey := w.objectKey(exchange, symbol, batchTime)
	if err := w.upload(objKey, data); err != nil {
		w.log.WithComponent("archive_writer").WithError(err).WithFields(logger.Fields{
			"s3_key": objKey,
		}).Error("failed to upload event batch")
		w.requeue(key, entries)
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"s3_key":  objKey,
		"records": len(entries),
		"bytes":   len(data),
	}).Info("event batch uploaded")
}

// requeue puts a failed batch back for the next flush cycle. The buffer stays
// bounded; oldest entries are dropped under sustained upload failure.
func (w *ArchiveWriter) requeue(key string, entries []models.LiquidationEvent) {
	max := w.cfg.Storage.S3.MaxBufferSize * 2

	w.mu.Lock()
	merged := append(entries, w.buffer[key]...)
	if len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	w.buffer[key] = merged
	w.lastFlush[key] = time.Now()
	w.mu.Unlock()
}

func createParquet(entries []models.LiquidationEvent) ([]byte, error) {
	mf := newArchiveMemFile()
	pw, err := writer.NewParquetWriter(mf, new(eventRecord), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, ev := range entries {
		rec := eventRecord{
			Exchange:  strings.ToLower(string(ev.Exchange)),
			Symbol:    strings.ToUpper(ev.Symbol),
			EventTime: ev.TimestampMs,
			Side:      string(ev.Side),
			Price:     ev.Price,
			Quantity:  ev.Quantity,
			ValueUSD:  ev.ValueUSD,
		}
		if err := pw.Write(rec); err != nil {
			return nil, err
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mf.Bytes(), nil
}

func (w *ArchiveWriter) upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}

	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	return err
}

func bufferKey(exchange, symbol string) string {
	exch := strings.ToLower(strings.TrimSpace(exchange))
	if exch == "" {
		exch = "unknown"
	}
	return strings.Join([]string{exch, strings.ToUpper(strings.TrimSpace(symbol))}, archiveKeySeparator)
}

func (w *ArchiveWriter) objectKey(exchange, symbol string, ts time.Time) string {
	ts = ts.UTC()
	parts := []string{
		fmt.Sprintf("exchange=%s", strings.ToLower(exchange)),
		fmt.Sprintf("symbol=%s", strings.ToUpper(symbol)),
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
	}
	filename := fmt.Sprintf("%s_liq_%s_%s_%s.parquet",
		strings.ToLower(exchange), strings.ToUpper(symbol),
		ts.Format("20060102150405"), uuid.NewString()[:8])
	return filepath.ToSlash(filepath.Join(append(parts, filename)...))
}
