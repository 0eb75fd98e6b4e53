package keyproxy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var validTable = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// DefaultTokenTable is used when no table name is configured.
const DefaultTokenTable = "keyproxy_session"

// StoredValue is one row of a GormTokenStore table.
type StoredValue struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// GormTokenStore keeps values in a SQL table through gorm. The table is
// created on open if missing.
type GormTokenStore struct {
	db    *gorm.DB
	table string
}

// NewPostgresTokenStore opens a store on a Postgres database.
func NewPostgresTokenStore(dsn, table string) (*GormTokenStore, error) {
	return NewGormTokenStore(postgres.Open(dsn), table)
}

// NewGormTokenStore opens a store through any gorm dialector.
func NewGormTokenStore(dialector gorm.Dialector, table string) (*GormTokenStore, error) {
	if table == "" {
		table = DefaultTokenTable
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.Table(table).AutoMigrate(&StoredValue{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", table, err)
	}
	return &GormTokenStore{db: db, table: table}, nil
}

func (s *GormTokenStore) Load(ctx context.Context, key string) (string, bool, error) {
	var row StoredValue
	err := s.db.WithContext(ctx).Table(s.table).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load %q: %w", key, err)
	}
	return row.Value, true, nil
}

func (s *GormTokenStore) Save(ctx context.Context, key, value string) error {
	row := StoredValue{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}

func (s *GormTokenStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Table(s.table).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Delete(&StoredValue{}).Error
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *GormTokenStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
