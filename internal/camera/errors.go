package camera

import "github.com/pkg/errors"

// 呼び出し元に返すエラー。プラットフォームのエラーコードはログにのみ残す
var (
	ErrEnvInit               = errors.New("environment init failed")
	ErrDeviceNotFound        = errors.New("device not found")
	ErrInterfaceNotSupported = errors.New("interface not supported")
	ErrInvalidProperty       = errors.New("invalid property")
	ErrPinEnumeration        = errors.New("pin enumeration failed")
)
