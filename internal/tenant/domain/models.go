// Package domain contains persistence models for tenants and their API credentials.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Tenant is an isolated customer account. Usage and billing state are
// scoped per tenant.
type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Email     string       `gorm:"type:text;not null"`
	IsActive  bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// APIKey stores hashed API credentials scoped to a tenant.
type APIKey struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	TenantID   snowflake.ID   `gorm:"column:tenant_id;not null;index"`
	Name       string         `gorm:"type:text;not null"`
	Scopes     pq.StringArray `gorm:"type:text[];not null"`
	KeyHash    string         `gorm:"column:key_hash;type:text;not null;uniqueIndex:ux_api_keys_key_hash"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt *time.Time     `gorm:"column:last_used_at"`
	ExpiresAt  *time.Time     `gorm:"column:expires_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

const (
	ScopeOrdersRead  = "orders:read"
	ScopeOrdersWrite = "orders:write"
	ScopeUsageRead   = "usage:read"
)

var ErrNotFound = errors.New("tenant_not_found")

// HashAPIKey hashes the raw API key using the same strategy as key creation.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
