package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AdamOShea/food-market-simulator/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed purchase ledger.
// It only ever appends and reports; market state is never restored from it.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the ledger database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	// Auto Migration
	if err := db.AutoMigrate(&domain.Purchase{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SavePurchase appends one purchase to the ledger
func (s *Storage) SavePurchase(ctx context.Context, p *domain.Purchase) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// PurchasesByBuyer returns a buyer's purchases, oldest first
func (s *Storage) PurchasesByBuyer(ctx context.Context, buyerID int) ([]domain.Purchase, error) {
	var out []domain.Purchase
	err := s.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// SalesByItem aggregates units sold and purchase counts per item, by item name
func (s *Storage) SalesByItem(ctx context.Context) ([]domain.ItemSales, error) {
	var out []domain.ItemSales
	err := s.db.WithContext(ctx).
		Model(&domain.Purchase{}).
		Select("item, SUM(quantity) AS units, COUNT(*) AS purchases").
		Group("item").
		Order("item ASC").
		Scan(&out).Error
	return out, err
}
