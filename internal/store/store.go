package store

import (
	"fmt"
	"net/url"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"twsgo/internal/schema"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Config defines the PostgreSQL connection for the activity store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// ConnString overrides the assembled DSN when set.
	ConnString string
}

// Store persists order activity. A nil *Store is a valid no-op store, so
// callers record unconditionally and persistence stays optional.
type Store struct {
	db *gorm.DB
}

// Open connects and migrates the activity tables.
func Open(cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open activity store: %w", err)
	}
	if err := db.AutoMigrate(&OrderRecord{}, &StatusRecord{}, &ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate activity store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordOrder persists an order submission.
func (s *Store) RecordOrder(sessionID string, o schema.Order) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Create(&OrderRecord{
		SessionID: sessionID,
		OrderID:   int64(o.OrderID),
		ParentID:  int64(o.ParentID),
		Symbol:    o.Contract.Symbol,
		Action:    string(o.Action),
		OrderType: string(o.Type),
		Quantity:  o.Quantity.String(),
		LimitPx:   o.LimitPrice.String(),
		AuxPx:     o.AuxPrice.String(),
		TIF:       string(o.TIF),
		OCAGroup:  o.OCAGroup,
		Account:   o.Account,
	}).Error
}

// RecordStatus persists a status transition.
func (s *Store) RecordStatus(sessionID string, ev schema.OrderStatus) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Create(&StatusRecord{
		SessionID: sessionID,
		OrderID:   int64(ev.OrderID),
		Status:    ev.Status.String(),
		Filled:    ev.Filled.String(),
		Remaining: ev.Remaining.String(),
		AvgPx:     ev.AvgFillPrice.String(),
	}).Error
}

// RecordExecution persists an execution report.
func (s *Store) RecordExecution(sessionID string, ev schema.ExecDetails) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Create(&ExecutionRecord{
		SessionID: sessionID,
		OrderID:   int64(ev.OrderID),
		ExecID:    ev.ExecID,
		Side:      ev.Side,
		Shares:    ev.Shares.String(),
		Price:     ev.Price.String(),
		CumQty:    ev.CumQty.String(),
		ExecTime:  ev.Time,
	}).Error
}

func (cfg Config) dsn() string {
	if cfg.ConnString != "" {
		return cfg.ConnString
	}

	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	if cfg.Database != "" {
		u.Path = "/" + cfg.Database
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()
	return u.String()
}
