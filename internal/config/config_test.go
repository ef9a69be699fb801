package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv はテストに影響する環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CAMCTL_CONFIG", "SERVER_HOST", "PORT", "CAMCTL_BACKEND",
		"CAMCTL_LOG_LEVEL", "CAMCTL_STORE_PATH", "CAMCTL_CACHE_HANDLES",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camctl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("設定ファイルの作成に失敗しました: %v", err)
	}
	return path
}

// TestConfigLoad は設定ファイルがない場合のデフォルト値をテストする
func TestConfigLoad(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		t.Errorf("無効なポート番号: %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		t.Error("シャットダウンタイムアウトが設定されていません")
	}
	if cfg.Camera.Backend != "auto" {
		t.Errorf("バックエンドが auto ではありません: %s", cfg.Camera.Backend)
	}
	if cfg.Camera.CacheHandles {
		t.Error("ハンドルキャッシュはデフォルトで無効のはずです")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("ログ設定が不正です: %+v", cfg.Log)
	}
}

// TestConfigLoadFile はYAMLファイルの読み込みをテストする
func TestConfigLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9000
  shutdown_timeout: 3s
camera:
  backend: mock
  cache_handles: true
log:
  level: debug
  format: json
store:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.ServerAddress() != "0.0.0.0:9000" {
		t.Errorf("サーバーアドレスが一致しません: %s", cfg.ServerAddress())
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("シャットダウンタイムアウトが一致しません: %v", cfg.Server.ShutdownTimeout)
	}
	// ファイルで指定しなかった項目はデフォルト値のまま
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("読み込みタイムアウトが一致しません: %v", cfg.Server.ReadTimeout)
	}
	if cfg.Camera.Backend != "mock" || !cfg.Camera.CacheHandles {
		t.Errorf("カメラ設定が一致しません: %+v", cfg.Camera)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("ログ設定が一致しません: %+v", cfg.Log)
	}
	if cfg.Store.Enabled {
		t.Error("ストアは無効のはずです")
	}
}

// TestConfigLoadErrors は読み込みエラーをテストする
func TestConfigLoadErrors(t *testing.T) {
	clearEnv(t)

	t.Run("明示したファイルがない", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("エラーが期待されましたが、エラーが発生しませんでした")
		}
	})

	t.Run("YAMLの構文エラー", func(t *testing.T) {
		path := writeConfig(t, "server: [unclosed")
		if _, err := Load(path); err == nil {
			t.Error("エラーが期待されましたが、エラーが発生しませんでした")
		}
	})

	t.Run("検証エラー", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 0\n")
		if _, err := Load(path); err == nil {
			t.Error("エラーが期待されましたが、エラーが発生しませんでした")
		}
	})
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(c *Config)
		expectErr bool
	}{
		{
			name:      "正常な設定",
			modify:    func(c *Config) {},
			expectErr: false,
		},
		{
			name:      "無効なポート番号",
			modify:    func(c *Config) { c.Server.Port = 99999 },
			expectErr: true,
		},
		{
			name:      "負のタイムアウト",
			modify:    func(c *Config) { c.Server.ShutdownTimeout = -time.Second },
			expectErr: true,
		},
		{
			name:      "未知のバックエンド",
			modify:    func(c *Config) { c.Camera.Backend = "gstreamer" },
			expectErr: true,
		},
		{
			name:      "未知のログレベル",
			modify:    func(c *Config) { c.Log.Level = "verbose" },
			expectErr: true,
		},
		{
			name:      "未知のログ形式",
			modify:    func(c *Config) { c.Log.Format = "xml" },
			expectErr: true,
		},
		{
			name:      "ストアのパスなし",
			modify:    func(c *Config) { c.Store.Path = "" },
			expectErr: true,
		},
		{
			name: "ストア無効ならパス不要",
			modify: func(c *Config) {
				c.Store.Enabled = false
				c.Store.Path = ""
			},
			expectErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	expected := "192.168.1.100:9090"
	actual := cfg.ServerAddress()

	if actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
// 注意: このテストは環境変数を変更するため、parallelは使わない
func TestEnvironmentVariables(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  host: file.example.com\n  port: 8000\n")

	t.Setenv("CAMCTL_CONFIG", path)
	t.Setenv("SERVER_HOST", "test.example.com")
	t.Setenv("PORT", "9999")
	t.Setenv("CAMCTL_BACKEND", "mock")
	t.Setenv("CAMCTL_CACHE_HANDLES", "true")
	t.Setenv("CAMCTL_LOG_LEVEL", "debug")
	t.Setenv("CAMCTL_STORE_PATH", "/tmp/camctl-test.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// 環境変数はファイルより優先される
	if cfg.Server.Host != "test.example.com" {
		t.Errorf("ホストが環境変数から設定されていません: %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("ポートが環境変数から設定されていません: %d", cfg.Server.Port)
	}
	if cfg.Camera.Backend != "mock" || !cfg.Camera.CacheHandles {
		t.Errorf("カメラ設定が環境変数から設定されていません: %+v", cfg.Camera)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("ログレベルが環境変数から設定されていません: %s", cfg.Log.Level)
	}
	if cfg.Store.Path != "/tmp/camctl-test.db" {
		t.Errorf("ストアのパスが環境変数から設定されていません: %s", cfg.Store.Path)
	}
}

// TestEnvironmentVariablesInvalid は不正な値を無視することをテストする
func TestEnvironmentVariablesInvalid(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "not-a-number")
	t.Setenv("CAMCTL_CACHE_HANDLES", "maybe")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("不正なポートは無視されるはずです: %d", cfg.Server.Port)
	}
	if cfg.Camera.CacheHandles {
		t.Error("不正な真偽値は無視されるはずです")
	}
}
