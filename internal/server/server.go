package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"camctl/internal/camera"
	"camctl/internal/config"
	"camctl/internal/hotplug"
	"camctl/internal/store"
)

// Store はサーバーが使う履歴とプリセットの保存先
type Store interface {
	History(device string, limit int) ([]store.Change, error)
	SavePreset(name, device string, updates []camera.SettingUpdate) error
	Preset(name string) (*store.Preset, error)
	Presets() ([]store.Preset, error)
	DeletePreset(name string) error
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	controller *camera.Controller
	store      Store
	log        *logrus.Logger
	engine     *gin.Engine
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// Option は Server の設定を変更する
type Option func(*Server)

// WithStore は履歴とプリセットの保存先を設定する。未設定なら該当APIは 503 を返す
func WithStore(s Store) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, controller *camera.Controller, logger *logrus.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		config:     cfg,
		controller: controller,
		log:        logger,
		engine:     engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr は待ち受け中のアドレスを返す。起動前は設定値を返す
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.Use(requestID(), accessLog(s.log), gin.Recovery())

	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)

	devices := api.Group("/devices")
	devices.GET("", s.handleListDevices)
	devices.POST("/:device/open", s.handleOpen)
	devices.POST("/:device/close", s.handleClose)
	devices.GET("/:device/settings", s.handleGetSettings)
	devices.PUT("/:device/settings", s.handleSetSettings)
	devices.GET("/:device/resolutions", s.handleListResolutions)
	devices.GET("/:device/history", s.handleHistory)

	presets := api.Group("/presets")
	presets.GET("", s.handleListPresets)
	presets.PUT("/:name", s.handleSavePreset)
	presets.POST("/:name/apply", s.handleApplyPreset)
	presets.DELETE("/:name", s.handleDeletePreset)
}

// Start はサーバーを起動する
//
// 待ち受けを開始したら systemd に READY を通知する。ctx のキャンセルか
// SIGINT/SIGTERM を受けるとグレースフルにシャットダウンする。
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "待ち受けに失敗: %s", s.httpServer.Addr)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	s.startHotplug(watchCtx)

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("HTTPサーバーを起動しています")
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			shutdownCh <- errors.Wrap(err, "サーバーの起動に失敗")
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		s.log.WithError(err).Warn("systemd への通知に失敗")
	} else if ok {
		s.log.Debug("systemd に READY を通知しました")
	}

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.log.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.log.WithField("signal", sig.String()).Info("シグナルを受信しました")
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.log.Info("サーバーをシャットダウンしています...")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "サーバーのシャットダウンに失敗")
	}

	// 保持しているデバイスハンドルを解放する
	if n, err := s.controller.PurgeCache(context.Background()); err != nil {
		s.log.WithError(err).Warn("キャッシュの破棄に失敗")
	} else if n > 0 {
		s.log.WithField("count", n).Info("キャッシュ中のハンドルを解放しました")
	}

	s.log.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// startHotplug はデバイスノードの変化でハンドルキャッシュを破棄する
//
// インデックス指定のキャッシュは列挙順が変わると別のデバイスを指すため。
// V4L2 バックエンドでのみ有効。
func (s *Server) startHotplug(ctx context.Context) {
	if !s.config.Camera.WatchHotplug || s.controller.Backend() != "v4l2" {
		return
	}

	log := s.log.WithField("component", "hotplug")
	err := hotplug.Watch(ctx, s.config.Camera.DeviceDir, log, func(name string) {
		if _, err := s.controller.PurgeCache(ctx); err != nil {
			log.WithError(err).Warn("キャッシュの破棄に失敗")
		}
	})
	if err != nil {
		log.WithError(err).Warn("デバイスの監視を開始できません")
	}
}
