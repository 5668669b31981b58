package xerr

import "errors"

var (
	ErrInternalServer = errors.New("internal server error")

	// 校验错误, 在访问数据库之前返回
	ErrInvalidParams      = errors.New("invalid parameters")
	ErrUnknownFilter      = errors.New("unknown search filter")
	ErrInconsistentFilter = errors.New("inconsistent search filters")
	ErrDuplicatePriority  = errors.New("priority already used in this processing version")
	ErrAliasConflict      = errors.New("alias conflicts with an existing processing version")

	// 查找失败
	ErrUnknownVersion = errors.New("unknown processing version")
	ErrUnknownObject  = errors.New("unknown object")
	ErrNoSnapshot     = errors.New("export snapshot not found")

	// 完整性错误: 版本模型的不变量已被破坏, 不重试
	ErrVersionIntegrity = errors.New("processing version integrity error")

	ErrQueryTimeout = errors.New("query timed out")

	// 数据库与外部服务错误
	ErrDatabaseError = errors.New("database operation failed")
	ErrStorageError  = errors.New("object storage operation failed")
	ErrMQError       = errors.New("message queue operation failed")
	ErrStagingError  = errors.New("staging store operation failed")
)
