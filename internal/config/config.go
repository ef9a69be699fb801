package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath は --config も CAMCTL_CONFIG も指定されない場合に読む設定ファイル
const DefaultPath = "camctl.yaml"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // グレースフルシャットダウンの猶予
}

// CameraConfig はデバイス制御の設定
type CameraConfig struct {
	Backend      string `yaml:"backend"`       // auto（OS既定）または mock
	DeviceDir    string `yaml:"device_dir"`    // V4L2 デバイスノードのディレクトリ
	CacheHandles bool   `yaml:"cache_handles"` // Open したハンドルを Close まで保持する
	WatchHotplug bool   `yaml:"watch_hotplug"` // デバイスの抜き差しでキャッシュを破棄する
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text または json
	File   string `yaml:"file"`   // 空なら標準エラーのみ
}

// StoreConfig は書き込み履歴とプリセットの保存先
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Camera: CameraConfig{
			Backend:      "auto",
			DeviceDir:    "/dev",
			CacheHandles: false,
			WatchHotplug: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "camctl.db",
		},
	}
}

// Load は設定を読み込む
//
// path が空の場合は CAMCTL_CONFIG、それもなければ DefaultPath を読む。
// DefaultPath が存在しないのはエラーにしないが、明示されたファイルがないのはエラー。
// ファイルの後に環境変数を適用し、最後に検証する。
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := true
	if path == "" {
		path = os.Getenv("CAMCTL_CONFIG")
	}
	if path == "" {
		path = DefaultPath
		explicit = false
	}

	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "設定の検証に失敗")
	}

	return cfg, nil
}

func (c *Config) loadFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errors.Wrapf(err, "設定ファイルを読み込めません: %s", path)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "設定ファイルの解析に失敗: %s", path)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Backend = getEnvOrDefault("CAMCTL_BACKEND", c.Camera.Backend)
	c.Camera.CacheHandles = getEnvAsBoolOrDefault("CAMCTL_CACHE_HANDLES", c.Camera.CacheHandles)
	c.Log.Level = getEnvOrDefault("CAMCTL_LOG_LEVEL", c.Log.Level)
	c.Store.Path = getEnvOrDefault("CAMCTL_STORE_PATH", c.Store.Path)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("タイムアウトに負の値は指定できません")
	}

	switch c.Camera.Backend {
	case "auto", "mock":
	default:
		return fmt.Errorf("無効なバックエンド: %q", c.Camera.Backend)
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("無効なログレベル: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("無効なログ形式: %q", c.Log.Format)
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("ストアのパスが設定されていません")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault は環境変数を真偽値として取得する
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
