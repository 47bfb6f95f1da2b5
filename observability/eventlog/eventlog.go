package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dope/core/events"
)

// Record is one committed protocol event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID      uuid.UUID `gorm:"type:uuid;index"`
	Sequence   uint64    `gorm:"index"`
	Type       string    `gorm:"index"`
	At         uint64
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the stored attribute map.
func (r Record) Attrs() (map[string]string, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("eventlog: decode attributes: %w", err)
	}
	return attrs, nil
}

// Open connects to the event database. Supported drivers are "sqlite" and
// "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the event tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("eventlog: migrate: %w", err)
	}
	return nil
}

// Sink persists events as they are emitted. Write failures are logged and the
// first one is retained for Err; event delivery never fails a committed
// operation.
type Sink struct {
	db     *gorm.DB
	runID  uuid.UUID
	logger *slog.Logger

	mu   sync.Mutex
	seq  uint64
	werr error
}

// NewSink creates a sink that tags every record with runID.
func NewSink(db *gorm.DB, runID uuid.UUID, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{db: db, runID: runID, logger: log}
}

// RunID returns the identifier attached to this sink's records.
func (s *Sink) RunID() uuid.UUID { return s.runID }

// Emit implements events.Emitter.
func (s *Sink) Emit(evt events.Event) {
	rendered := events.Render(evt)
	if s == nil || rendered == nil {
		return
	}
	encoded, err := json.Marshal(rendered.Attributes)
	if err != nil {
		s.fail(rendered.Type, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	record := Record{
		ID:         uuid.New(),
		RunID:      s.runID,
		Sequence:   s.seq,
		Type:       rendered.Type,
		At:         rendered.At,
		Attributes: string(encoded),
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.failLocked(rendered.Type, err)
	}
}

// Err returns the first write failure, if any.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.werr
}

// Records returns this run's events in emission order.
func (s *Sink) Records(ctx context.Context) ([]Record, error) {
	var out []Record
	err := s.db.WithContext(ctx).Where("run_id = ?", s.runID).Order("sequence asc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	return out, nil
}

// CountByType tallies this run's events per type.
func (s *Sink) CountByType(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Type  string
		Total int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&Record{}).
		Select("type, count(*) as total").
		Where("run_id = ?", s.runID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("eventlog: count: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Type] = r.Total
	}
	return out, nil
}

func (s *Sink) fail(kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(kind, err)
}

func (s *Sink) failLocked(kind string, err error) {
	if s.werr == nil {
		s.werr = err
	}
	s.logger.Error("eventlog write failed", slog.String("type", kind), slog.Any("error", err))
}
