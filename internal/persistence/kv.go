package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is the persistent key-value store the cache blob lives in.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type kvEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;type:varchar(191)"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (kvEntry) TableName() string { return "kv_entries" }

// GormKV keeps entries in the kv_entries table of the local database.
type GormKV struct {
	db *gorm.DB
}

func NewGormKV(db *gorm.DB) (*GormKV, error) {
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &GormKV{db: db}, nil
}

func (k *GormKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry kvEntry
	err := k.db.WithContext(ctx).Where("cache_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (k *GormKV) Set(ctx context.Context, key string, value []byte) error {
	entry := kvEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return k.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (k *GormKV) Delete(ctx context.Context, key string) error {
	return k.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&kvEntry{}).Error
}

// RedisKV keeps entries as plain redis strings without expiry.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (k *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := k.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (k *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return k.client.Set(ctx, key, value, 0).Err()
}

func (k *RedisKV) Delete(ctx context.Context, key string) error {
	return k.client.Del(ctx, key).Err()
}
