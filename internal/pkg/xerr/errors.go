package xerr

import (
	"errors"
	"fmt"
)

// CodeError 用于在服务层传递带有业务码的错误
type CodeError struct {
	Code int   // 业务错误码
	Err  error // 被包裹的底层错误
}

func (e *CodeError) Error() string {
	return e.Err.Error()
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

func NewCodeError(code int, err error) *CodeError {
	return &CodeError{Code: code, Err: err}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrapf 在哨兵错误前加上具体描述, 保留 errors.Is 判断
func Wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// CodeOf 返回错误对应的业务码, 未知错误视为服务器内部错误
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrUnknownFilter):
		return UnknownFilterCode
	case errors.Is(err, ErrInconsistentFilter):
		return InconsistentFilterCode
	case errors.Is(err, ErrDuplicatePriority):
		return DuplicatePriorityCode
	case errors.Is(err, ErrAliasConflict):
		return AliasConflictCode
	case errors.Is(err, ErrInvalidParams):
		return InvalidParamsCode
	case errors.Is(err, ErrUnknownVersion):
		return UnknownVersionCode
	case errors.Is(err, ErrUnknownObject):
		return UnknownObjectCode
	case errors.Is(err, ErrNoSnapshot):
		return NotFoundCode
	case errors.Is(err, ErrVersionIntegrity):
		return VersionIntegrityCode
	case errors.Is(err, ErrQueryTimeout):
		return QueryTimeoutCode
	case errors.Is(err, ErrDatabaseError):
		return DatabaseErrorCode
	case errors.Is(err, ErrStorageError):
		return StorageErrorCode
	case errors.Is(err, ErrMQError):
		return MQErrorCode
	case errors.Is(err, ErrStagingError):
		return StagingErrorCode
	}
	return InternalServerErrorCode
}

// HTTPStatus 把业务码映射为 HTTP 状态码 (业务码前三位)
func HTTPStatus(code int) int {
	return code / 100
}
