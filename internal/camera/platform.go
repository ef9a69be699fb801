package camera

// PlatformOptions はOS別バックエンドの設定
type PlatformOptions struct {
	// DeviceDir は V4L2 デバイスノードを探すディレクトリ（Linux のみ）
	DeviceDir string
}

// Platform はOSのマルチメディアAPIを抽象化する
//
// 取得したハンドルはすべて呼び出し側が Release する。
type Platform interface {
	// Name はバックエンド名を返す（"dshow", "v4l2", "mock" など）
	Name() string

	// Init はランタイム環境を初期化する
	Init() (Env, error)

	// Devices はビデオ入力カテゴリのデバイス列挙子を作成する
	Devices() (DeviceEnumerator, error)
}

// threadBound は取得したハンドルが呼び出しごとのランタイム環境に属する Platform が実装する
//
// DirectShow では Env.Release が COM アパートメントを閉じるため、そこで作った
// オブジェクトを次の呼び出しで解放できない。
type threadBound interface {
	ThreadBound() bool
}

// Env は1回の呼び出しの間だけ保持するランタイム環境
type Env interface {
	// Owned はこの呼び出しで初期化したかどうかを返す
	Owned() bool

	// Release は Owned の場合のみ後始末を行う
	Release()
}

// DeviceEnumerator はデバイス候補を列挙順に返す
type DeviceEnumerator interface {
	Next() (Candidate, bool)
	Release()
}

// Candidate は列挙中のデバイス候補
type Candidate interface {
	// FriendlyName はプロパティバッグから表示名を読む
	FriendlyName() (string, error)

	// Bind はデバイスハンドルを作成する
	Bind() (Filter, error)

	Release()
}

// Filter は開いたデバイスのハンドル
type Filter interface {
	VideoProcAmp() (PropertyControl, error)
	CameraControl() (PropertyControl, error)
	Pins() (PinEnumerator, error)
	Release()
}

// PropertyControl はプロパティ群の取得・設定インターフェース
type PropertyControl interface {
	GetRange(property int32) (Range, error)
	Get(property int32) (value int32, flags int32, err error)
	Set(property int32, value int32, flags int32) error
	Release()
}

// PinEnumerator は出力ピンを列挙する
type PinEnumerator interface {
	Next() (Pin, bool)
	Release()
}

// Pin はフィルタのピン
type Pin interface {
	// StreamConfig はストリーム設定インターフェースを取得する（非対応なら error）
	StreamConfig() (StreamConfig, error)
	Release()
}

// StreamConfig はピンのストリーム能力を列挙する
type StreamConfig interface {
	NumCaps() (int, error)
	Cap(index int) (StreamCap, error)
	Release()
}

// nopEnv は初期化が不要なプラットフォーム用の Env
type nopEnv struct{}

func (nopEnv) Owned() bool { return false }
func (nopEnv) Release()    {}
