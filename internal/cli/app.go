package cli

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"camctl/internal/camera"
	"camctl/internal/config"
	"camctl/internal/logging"
	"camctl/internal/store"
)

// App はコマンド実行中に共有する状態
//
// shell ではセッション全体で同じ App を使うため、ハンドルキャッシュが意味を持つ。
type App struct {
	// フラグ
	configPath string
	mock       bool
	logLevel   string
	output     string

	cfg        *config.Config
	log        *logrus.Logger
	logCloser  io.Closer
	store      *store.Store
	controller *camera.Controller

	// platform はテストで差し替える
	platform camera.Platform
}

func (a *App) initialized() bool {
	return a.controller != nil
}

// init は設定を読み込み、ロガー、ストア、コントローラーを作成する
func (a *App) init(quiet bool) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.mock {
		cfg.Camera.Backend = "mock"
	}
	a.cfg = cfg

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	// 対話的なコマンドでは明示されない限り警告以上だけを出す
	if quiet && logger.IsLevelEnabled(logrus.InfoLevel) {
		logger.SetLevel(logrus.WarnLevel)
	}
	a.log = logger
	a.logCloser = closer

	opts := []camera.Option{camera.WithLogger(logger)}
	if cfg.Camera.CacheHandles {
		opts = append(opts, camera.WithCache(camera.NewMapCache()))
	}
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return err
		}
		a.store = st
		opts = append(opts, camera.WithRecorder(st))
	}

	a.controller = camera.NewController(a.selectPlatform(), opts...)
	logger.WithFields(logrus.Fields{
		"backend": a.controller.Backend(),
		"cache":   cfg.Camera.CacheHandles,
		"store":   cfg.Store.Enabled,
	}).Debug("コントローラーを作成しました")
	return nil
}

func (a *App) selectPlatform() camera.Platform {
	if a.platform != nil {
		return a.platform
	}
	if a.cfg.Camera.Backend == "mock" {
		return DemoPlatform()
	}
	return camera.NewPlatform(camera.PlatformOptions{DeviceDir: a.cfg.Camera.DeviceDir})
}

// requireStore はストアが無効ならエラーを返す
func (a *App) requireStore() (*store.Store, error) {
	if a.store == nil {
		return nil, errors.New("ストアが無効です (store.enabled)")
	}
	return a.store, nil
}

// Close はキャッシュ中のハンドル、ストア、ログファイルを閉じる
func (a *App) Close() {
	if a.controller != nil {
		if _, err := a.controller.PurgeCache(context.Background()); err != nil {
			a.log.WithError(err).Warn("キャッシュの破棄に失敗")
		}
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// DemoPlatform は --mock で使うシミュレートされたデバイスを返す
func DemoPlatform() camera.Platform {
	return camera.NewMockPlatform(
		camera.NewMockDevice("Integrated Camera"),
		camera.NewMockDevice("USB Video Device"),
	)
}
