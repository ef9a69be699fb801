//go:build !linux && !windows

package camera

import "github.com/pkg/errors"

// NewPlatform はビデオ入力APIを持たない環境向けのバックエンドを返す
//
// 列挙は常に失敗するため、すべての操作はデバイス未検出として扱われる。
func NewPlatform(_ PlatformOptions) Platform {
	return unsupportedPlatform{}
}

type unsupportedPlatform struct{}

func (unsupportedPlatform) Name() string {
	return "unsupported"
}

func (unsupportedPlatform) Init() (Env, error) {
	return nopEnv{}, nil
}

func (unsupportedPlatform) Devices() (DeviceEnumerator, error) {
	return nil, errors.New("このOSではビデオ入力デバイスを列挙できません")
}
