package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tool names understood by the MCP server.
const (
	OpKVGet           = "kv_get"
	OpKVSet           = "kv_set"
	OpKVMGet          = "kv_mget"
	OpKVDel           = "kv_del"
	OpKVTTL           = "kv_ttl"
	OpKVScan          = "kv_scan"
	OpStoreFind       = "store_find"
	OpStoreAggregate  = "store_aggregate"
	OpSessionAppend   = "session_appendEvent"
	OpCapabilitiesLst = "capabilities_list"
)

const (
	OperationPending = "pending"
	OperationSuccess = "success"
	OperationError   = "error"
	OperationTimeout = "timeout"
)

// MCPOperation is the audit record of one tool-server invocation.
// A row starts out pending and is finalized exactly once; it is never
// moved back out of a terminal status.
type MCPOperation struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"message_id"`
	OperationType string            `gorm:"size:50;not null" json:"operation_type"`
	Parameters    datatypes.JSONMap `gorm:"type:jsonb" json:"parameters"`
	Response      datatypes.JSONMap `gorm:"type:jsonb" json:"response"`
	Status        string            `gorm:"size:20;not null;default:'pending'" json:"status"`
	DurationMS    *int64            `json:"duration_ms"`
	Timestamp     time.Time         `gorm:"not null;index" json:"timestamp"`
	ErrorDetails  string            `gorm:"type:text" json:"error_details,omitempty"`

	Message Message `gorm:"foreignKey:MessageID" json:"-"`
}

func (o *MCPOperation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	if o.Parameters == nil {
		o.Parameters = datatypes.JSONMap{}
	}
	if o.Response == nil {
		o.Response = datatypes.JSONMap{}
	}
	return nil
}

func ValidOperationType(name string) bool {
	switch name {
	case OpKVGet, OpKVSet, OpKVMGet, OpKVDel, OpKVTTL, OpKVScan,
		OpStoreFind, OpStoreAggregate, OpSessionAppend, OpCapabilitiesLst:
		return true
	}
	return false
}
