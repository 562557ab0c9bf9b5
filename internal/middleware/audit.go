package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuditLog records a change to the access ledger or an account
type AuditLog struct {
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	UserID     string `gorm:"column:user_id;size:128;index" json:"user_id"`
	Action     string `gorm:"column:action;size:32;index" json:"action"`
	Resource   string `gorm:"column:resource;size:32" json:"resource"`
	ResourceID string `gorm:"column:resource_id;size:128" json:"resource_id"`
	Status     int    `gorm:"column:status" json:"status"`
	ClientIP   string `gorm:"column:client_ip;size:64" json:"client_ip"`
	UserAgent  string `gorm:"column:user_agent;size:255" json:"user_agent"`
	RequestID  string `gorm:"column:request_id;size:64" json:"request_id"`

	ID int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
}

func (AuditLog) TableName() string {
	return "chat_audit_logs"
}

// AuditLogger writes audit entries. A nil logger or one without a database is a no-op.
type AuditLogger struct {
	db    *gorm.DB
	async bool
}

// NewAuditLogger creates a new AuditLogger and migrates its table
func NewAuditLogger(db *gorm.DB) *AuditLogger {
	if db != nil {
		if err := db.AutoMigrate(&AuditLog{}); err != nil {
			logger.Warn("audit log migration failed: %v", err)
		}
	}
	return &AuditLogger{db: db, async: true}
}

// Log writes an entry in the background so the request is never blocked
func (a *AuditLogger) Log(ctx context.Context, entry *AuditLog) {
	if a == nil || a.db == nil {
		return
	}

	write := func() {
		if err := a.db.WithContext(ctx).Create(entry).Error; err != nil {
			logger.FromContext(ctx).Error().Err(err).
				Str("action", entry.Action).
				Str("user_id", entry.UserID).
				Msg("audit log write failed")
		}
	}
	if !a.async {
		write()
		return
	}
	ctx = context.WithoutCancel(ctx)
	go write()
}

// List returns the newest entries of userID, optionally filtered by action
func (a *AuditLogger) List(ctx context.Context, userID, action string, page, perPage int) ([]AuditLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var logs []AuditLog
	var total int64
	query := a.db.WithContext(ctx).Model(&AuditLog{}).Where("user_id = ?", userID)
	if action != "" {
		query = query.Where("action = ?", action)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&logs).Error
	return logs, total, err
}

// AuditResourceKey lets a handler name the resource it created
const AuditResourceKey = "audit_resource_id"

// Audit records a successful call of the wrapped route as action on resource.
// The resource id is taken from AuditResourceKey, then the :id or :user_id path parameter.
func Audit(a *AuditLogger, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if a == nil || status >= http.StatusBadRequest {
			return
		}
		resourceID := c.GetString(AuditResourceKey)
		if resourceID == "" {
			resourceID = c.Param("id")
		}
		if resourceID == "" {
			resourceID = c.Param("user_id")
		}
		if resourceID == "" {
			resourceID = GetUserID(c)
		}
		a.Log(c.Request.Context(), &AuditLog{
			UserID:     GetUserID(c),
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			Status:     status,
			ClientIP:   c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			RequestID:  GetRequestID(c),
		})
	}
}
