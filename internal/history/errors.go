package history

import "codeberg.org/mutker/envirod/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("history_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("history_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("history_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed
	ErrQueryFailed  = errors.ErrorCode("history_query_failed")

	// Collection Errors
	ErrRecordFailed  = errors.ErrorCode("history_record_failed")
	ErrInvalidRecord = errors.ErrorCode("history_invalid_record")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
