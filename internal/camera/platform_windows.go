//go:build windows

package camera

// NewPlatform は DirectShow バックエンドを返す。DeviceDir は使わない
func NewPlatform(_ PlatformOptions) Platform {
	return dshowPlatform{}
}

// dshowPlatform はシステムデバイス列挙子経由でビデオ入力デバイスを操作する
type dshowPlatform struct{}

func (dshowPlatform) Name() string {
	return "dshow"
}

// ThreadBound はハンドルを呼び出し間で保持できないことを示す
func (dshowPlatform) ThreadBound() bool {
	return true
}

func (dshowPlatform) Init() (Env, error) {
	return initCOM()
}

func (dshowPlatform) Devices() (DeviceEnumerator, error) {
	return createDeviceEnumerator()
}
