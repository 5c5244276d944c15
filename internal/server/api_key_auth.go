package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/faturolabs/faturo/internal/tenant/domain"
	"github.com/faturolabs/faturo/internal/tenantctx"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
)

const (
	contextTenantIDKey     = "tenant_id"
	contextAPIKeyIDKey     = "api_key_id"
	contextAPIKeyScopesKey = "api_key_scopes"

	scopeOrdersRead  = tenantdomain.ScopeOrdersRead
	scopeOrdersWrite = tenantdomain.ScopeOrdersWrite
	scopeUsageRead   = tenantdomain.ScopeUsageRead
)

// APIKeyRequired authenticates requests with a bearer API key. Tenant
// identity is derived solely from the api_keys table.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		hash := tenantdomain.HashAPIKey(parts[1])
		now := time.Now().UTC()

		var record struct {
			ID       snowflake.ID   `gorm:"column:id"`
			TenantID snowflake.ID   `gorm:"column:tenant_id"`
			KeyHash  string         `gorm:"column:key_hash"`
			Scopes   pq.StringArray `gorm:"column:scopes"`
		}

		if err := s.db.WithContext(c.Request.Context()).Raw(
			`SELECT k.id, k.tenant_id, k.key_hash, k.scopes
			 FROM api_keys k
			 JOIN tenants t ON t.id = k.tenant_id
			 WHERE k.key_hash = ?
			   AND k.is_active = true
			   AND t.is_active = true
			   AND (k.expires_at IS NULL OR k.expires_at > ?)
			 LIMIT 1`,
			hash,
			now,
		).Scan(&record).Error; err != nil {
			AbortWithError(c, err)
			return
		}

		if record.ID == 0 || subtle.ConstantTimeCompare([]byte(record.KeyHash), []byte(hash)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		scopes := make([]string, 0, len(record.Scopes))
		scopes = append(scopes, record.Scopes...)

		c.Set(contextTenantIDKey, record.TenantID)
		c.Set(contextAPIKeyIDKey, record.ID)
		c.Set(contextAPIKeyScopesKey, scopes)

		ctx := tenantctx.WithTenantID(c.Request.Context(), record.TenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, ok := c.Get(contextAPIKeyScopesKey)
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		list, ok := scopes.([]string)
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		for _, have := range list {
			if have == scope {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

func tenantIDFromGin(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextTenantIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}
