package camera

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Controller はデバイス制御の各操作を提供する
//
// 各操作は呼び出しごとにランタイム環境を取得し、すべての終了経路で解放する。
// プラットフォームへのアクセスは mu で直列化する。
type Controller struct {
	platform Platform
	cache    HandleCache
	recorder WriteRecorder
	log      *logrus.Entry
	mu       sync.Mutex
}

// Option は Controller の設定を変更する
type Option func(*Controller)

// WithCache はハンドルキャッシュを差し替える（デフォルトは NopCache）
func WithCache(cache HandleCache) Option {
	return func(c *Controller) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithLogger は診断ログの出力先を設定する
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.log = logger.WithField("component", "camera-settings")
		}
	}
}

// WithRecorder は書き込み結果の記録先を設定する
func WithRecorder(recorder WriteRecorder) Option {
	return func(c *Controller) {
		c.recorder = recorder
	}
}

// NewController は新しい Controller を作成する
func NewController(platform Platform, opts ...Option) *Controller {
	c := &Controller{
		platform: platform,
		cache:    NopCache{},
		log:      logrus.StandardLogger().WithField("component", "camera-settings"),
	}
	for _, opt := range opts {
		opt(c)
	}

	// ハンドルが呼び出しのランタイム環境に属するバックエンドではキャッシュできない
	if tb, ok := platform.(threadBound); ok && tb.ThreadBound() {
		if _, nop := c.cache.(NopCache); !nop {
			c.log.WithField("backend", platform.Name()).Warn("このバックエンドはハンドルを呼び出し間で保持できないため、キャッシュを無効にします")
			c.cache = NopCache{}
		}
	}
	return c
}

// Backend はプラットフォーム名を返す
func (c *Controller) Backend() string {
	return c.platform.Name()
}

// CacheCount はキャッシュ中のハンドル数を返す
func (c *Controller) CacheCount() int {
	return c.cache.Len()
}

// Open はデバイスを解決できるか確認する
//
// キャッシュが保持しなかったハンドルはその場で解放する。
func (c *Controller) Open(ctx context.Context, id Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.opLog("open", id)
	env, err := c.acquireEnv(log)
	if err != nil {
		return err
	}
	defer env.Release()

	filter, err := c.resolveFilter(log, id)
	if err != nil {
		return err
	}

	if c.cache.Put(id, filter) {
		log.Debug("ハンドルをキャッシュしました")
	} else {
		filter.Release()
	}

	log.Info("デバイスを開きました")
	return nil
}

// Close はキャッシュ中のハンドルを解放する
//
// キャッシュにない場合は環境の初期化も行わずに何もしない。
func (c *Controller) Close(ctx context.Context, id Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cache.Has(id) {
		return nil
	}

	log := c.opLog("close", id)
	log.Debug("キャッシュ中のハンドルを検出しました")

	env, err := c.acquireEnv(log)
	if err != nil {
		return err
	}
	defer env.Release()

	if filter, ok := c.cache.Take(id); ok {
		filter.Release()
	}

	log.Info("デバイスを閉じました")
	return nil
}

// PurgeCache はキャッシュ中のハンドルをすべて解放し、解放した数を返す
func (c *Controller) PurgeCache(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache.Len() == 0 {
		return 0, nil
	}

	log := c.log.WithField("op", "purge")
	env, err := c.acquireEnv(log)
	if err != nil {
		return 0, err
	}
	defer env.Release()

	filters := c.cache.Drain()
	for _, f := range filters {
		f.Release()
	}

	log.WithField("count", len(filters)).Info("キャッシュを破棄しました")
	return len(filters), nil
}

// ListDevices はビデオ入力デバイスを列挙順に返す
//
// 表示名を読めない候補は一覧に含めないが、位置の数え方は解決時と同じにする。
func (c *Controller) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.WithField("op", "list-devices")
	env, err := c.acquireEnv(log)
	if err != nil {
		return nil, err
	}
	defer env.Release()

	devices, err := c.platform.Devices()
	if err != nil {
		log.WithError(err).Error("デバイス列挙子の作成に失敗")
		return nil, errors.WithStack(ErrDeviceNotFound)
	}
	defer devices.Release()

	result := make([]DeviceInfo, 0)
	position := -1
	for {
		candidate, ok := devices.Next()
		if !ok {
			break
		}
		position++

		name, err := candidate.FriendlyName()
		candidate.Release()
		if err != nil {
			log.WithError(err).WithField("position", position).Debug("表示名を読めないためスキップします")
			continue
		}
		result = append(result, DeviceInfo{Index: position, Name: name})
	}

	log.WithField("count", len(result)).Debug("デバイスを列挙しました")
	return result, nil
}

// GetSettings は画質系、制御系の順に全プロパティの現在値と範囲を返す
//
// 取得に失敗したプロパティはログに残して結果から除く。
func (c *Controller) GetSettings(ctx context.Context, id Identifier) ([]Setting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.opLog("get-settings", id)
	env, err := c.acquireEnv(log)
	if err != nil {
		return nil, err
	}
	defer env.Release()

	procAmp, cameraControl, err := c.resolveInterfaces(log, id)
	if err != nil {
		return nil, err
	}
	defer procAmp.Release()
	defer cameraControl.Release()

	settings := make([]Setting, 0, videoProperties.Len()+cameraProperties.Len())
	for _, p := range videoProperties.IDs() {
		if s, ok := readSetting(log, procAmp, CategoryVideo, int32(p), p.String()); ok {
			settings = append(settings, s)
		}
	}
	for _, p := range cameraProperties.IDs() {
		if s, ok := readSetting(log, cameraControl, CategoryCamera, int32(p), p.String()); ok {
			settings = append(settings, s)
		}
	}

	log.WithField("count", len(settings)).Info("設定を取得しました")
	return settings, nil
}

// SetSettings は要求順にプロパティを書き込む
//
// 書き込みに失敗したプロパティはスキップする。未知のプロパティ名があればその時点で
// ErrInvalidProperty を返し、それまでに適用した値は戻さない。
func (c *Controller) SetSettings(ctx context.Context, id Identifier, updates []SettingUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.opLog("set-settings", id)
	env, err := c.acquireEnv(log)
	if err != nil {
		return err
	}
	defer env.Release()

	log.WithField("count", len(updates)).Debug("書き込みを開始します")

	procAmp, cameraControl, err := c.resolveInterfaces(log, id)
	if err != nil {
		return err
	}
	defer procAmp.Release()
	defer cameraControl.Release()

	for _, u := range updates {
		category, property, ok := LookupProperty(u.Property)
		if !ok {
			log.WithField("prop", u.Property).Error("無効なプロパティです")
			return errors.Wrapf(ErrInvalidProperty, "%q", u.Property)
		}

		target := procAmp
		if category == CategoryCamera {
			target = cameraControl
		}

		err := target.Set(property, u.Value, u.flags())
		c.record(id, u, err)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"category": category,
				"prop":     u.Property,
			}).Warn("書き込みに失敗したためスキップします")
			continue
		}
	}

	log.Info("設定を書き込みました")
	return nil
}

// ListResolutions は全出力ピンのストリーム能力から解像度一覧を作る
//
// VIDEOINFO 形式以外の能力は除外し、未知のピクセルフォーマットは "unknown" とする。
func (c *Controller) ListResolutions(ctx context.Context, id Identifier) ([]Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.opLog("list-resolutions", id)
	env, err := c.acquireEnv(log)
	if err != nil {
		return nil, err
	}
	defer env.Release()

	filter, err := c.resolveFilter(log, id)
	if err != nil {
		return nil, err
	}
	defer filter.Release()

	pins, err := filter.Pins()
	if err != nil {
		log.WithError(err).Error("ピンの列挙に失敗")
		return nil, errors.Wrapf(ErrPinEnumeration, "デバイス %s", id)
	}
	defer pins.Release()

	resolutions := make([]Resolution, 0)
	for {
		pin, ok := pins.Next()
		if !ok {
			break
		}
		resolutions = append(resolutions, pinResolutions(pin)...)
		pin.Release()
	}

	log.WithField("count", len(resolutions)).Info("解像度を取得しました")
	return resolutions, nil
}

// acquireEnv はランタイム環境を取得する
func (c *Controller) acquireEnv(log *logrus.Entry) (Env, error) {
	env, err := c.platform.Init()
	if err != nil {
		log.WithError(err).Error("ランタイム環境の初期化に失敗")
		return nil, errors.WithStack(ErrEnvInit)
	}
	log.WithField("owned", env.Owned()).Debug("ランタイム環境を初期化しました")
	return env, nil
}

func (c *Controller) opLog(op string, id Identifier) *logrus.Entry {
	return c.log.WithFields(logrus.Fields{"op": op, "device": id.String()})
}

func (c *Controller) record(id Identifier, u SettingUpdate, err error) {
	if c.recorder != nil {
		c.recorder.RecordWrite(id.String(), u, err)
	}
}

// readSetting は1プロパティの範囲と現在値を読む。失敗時は false
func readSetting(log *logrus.Entry, ctl PropertyControl, category Category, property int32, name string) (Setting, bool) {
	fields := logrus.Fields{"category": category, "prop": name}

	r, err := ctl.GetRange(property)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("範囲の取得に失敗したためスキップします")
		return Setting{}, false
	}

	value, flags, err := ctl.Get(property)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("現在値の取得に失敗したためスキップします")
		return Setting{}, false
	}

	return Setting{
		Category:   category,
		Property:   name,
		Value:      value,
		Min:        r.Min,
		Max:        r.Max,
		Step:       r.Step,
		Default:    r.Default,
		RangeFlags: r.Flags,
		Auto:       flags == FlagAuto,
	}, true
}

// pinResolutions は1ピン分の解像度を集める。ストリーム設定に非対応のピンは空を返す
func pinResolutions(pin Pin) []Resolution {
	config, err := pin.StreamConfig()
	if err != nil {
		return nil
	}
	defer config.Release()

	count, err := config.NumCaps()
	if err != nil {
		return nil
	}

	var resolutions []Resolution
	for i := 0; i < count; i++ {
		caps, err := config.Cap(i)
		if err != nil {
			continue
		}
		if caps.Format != FormatVideoInfo {
			continue
		}
		resolutions = append(resolutions, Resolution{
			Width:  caps.Width,
			Height: caps.Height,
			Format: caps.Subtype.Tag(),
		})
	}
	return resolutions
}
