package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"camctl/internal/camera"
	"camctl/internal/config"
	"camctl/internal/store"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // ランダムポートを使用
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Camera.WatchHotplug = false
	return cfg
}

type testEnv struct {
	server   *Server
	platform *camera.MockPlatform
	store    *store.Store
}

// newTestEnv はモックデバイス2台とストアを持つサーバーを作成する
func newTestEnv(t *testing.T, withStore bool) *testEnv {
	t.Helper()
	logger := quietLogger()

	limited := camera.NewMockDevice("Limited")
	limited.NoCameraControl = true
	platform := camera.NewMockPlatform(camera.NewMockDevice("Front"), camera.NewMockDevice("Back"), limited)

	env := &testEnv{platform: platform}
	opts := []camera.Option{camera.WithLogger(logger), camera.WithCache(camera.NewMapCache())}
	var serverOpts []Option
	if withStore {
		st, err := store.Open(filepath.Join(t.TempDir(), "camctl.db"), logger)
		if err != nil {
			t.Fatalf("ストアを開けませんでした: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		env.store = st
		opts = append(opts, camera.WithRecorder(st))
		serverOpts = append(serverOpts, WithStore(st))
	}

	controller := camera.NewController(platform, opts...)
	env.server = New(testConfig(), controller, logger, serverOpts...)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("リクエストのエンコードに失敗しました: %v", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v (body=%s)", err, rec.Body.String())
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	env := newTestEnv(t, false)

	// テスト用のコンテキスト（タイムアウト付き）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- env.server.Start(ctx)
	}()

	// 待ち受けが始まるまで待つ
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		time.Sleep(20 * time.Millisecond)
		resp, err = http.Get("http://" + env.server.Addr() + "/health")
		if err == nil {
			break
		}
	}
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("予期しないステータスコード: got %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestServerEndpoints は各エンドポイントのステータスコードをテストする
func TestServerEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	testCases := []struct {
		name           string
		method         string
		endpoint       string
		body           interface{}
		expectedStatus int
	}{
		{"ヘルスチェック", http.MethodGet, "/health", nil, http.StatusOK},
		{"ステータス", http.MethodGet, "/api/status", nil, http.StatusOK},
		{"デバイス一覧", http.MethodGet, "/api/devices", nil, http.StatusOK},
		{"名前で開く", http.MethodPost, "/api/devices/Front/open", nil, http.StatusOK},
		{"インデックスで開く", http.MethodPost, "/api/devices/1/open", nil, http.StatusOK},
		{"存在しないデバイスを開く", http.MethodPost, "/api/devices/Missing/open", nil, http.StatusNotFound},
		{"範囲外のインデックス", http.MethodPost, "/api/devices/9/open", nil, http.StatusNotFound},
		{"閉じる", http.MethodPost, "/api/devices/Front/close", nil, http.StatusOK},
		{"開いていないデバイスを閉じる", http.MethodPost, "/api/devices/Missing/close", nil, http.StatusOK},
		{"設定の取得", http.MethodGet, "/api/devices/Front/settings", nil, http.StatusOK},
		{"インターフェース非対応", http.MethodGet, "/api/devices/Limited/settings", nil, http.StatusUnprocessableEntity},
		{"設定の書き込み", http.MethodPut, "/api/devices/Front/settings",
			SetSettingsRequest{Settings: []camera.SettingUpdate{{Property: "Brightness", Value: 10}}}, http.StatusOK},
		{"不正なプロパティ", http.MethodPut, "/api/devices/Front/settings",
			SetSettingsRequest{Settings: []camera.SettingUpdate{{Property: "Bogus", Value: 1}}}, http.StatusBadRequest},
		{"不正なJSON", http.MethodPut, "/api/devices/Front/settings", "{", http.StatusBadRequest},
		{"解像度一覧", http.MethodGet, "/api/devices/0/resolutions", nil, http.StatusOK},
		{"履歴", http.MethodGet, "/api/devices/Front/history", nil, http.StatusOK},
		{"不正な limit", http.MethodGet, "/api/devices/Front/history?limit=x", nil, http.StatusBadRequest},
		{"プリセット一覧", http.MethodGet, "/api/presets", nil, http.StatusOK},
		{"存在しないプリセットの適用", http.MethodPost, "/api/presets/none/apply", nil, http.StatusNotFound},
		{"存在しないプリセットの削除", http.MethodDelete, "/api/presets/none", nil, http.StatusNotFound},
		{"デバイスなしのプリセット保存", http.MethodPut, "/api/presets/day", PresetRequest{}, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.method, tc.endpoint, tc.body)
			if rec.Code != tc.expectedStatus {
				t.Errorf("予期しないステータスコード: got %d, want %d (body=%s)",
					rec.Code, tc.expectedStatus, rec.Body.String())
			}
			if rec.Header().Get(requestIDHeader) == "" {
				t.Error("リクエストIDが設定されていません")
			}
		})
	}

	if env.platform.Outstanding() != 1 {
		t.Errorf("キャッシュ中の1台以外のハンドルが残っています: %d", env.platform.Outstanding())
	}
}

// TestServerSettings は設定の書き込みと読み出しをテストする
func TestServerSettings(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPut, "/api/devices/Front/settings", SetSettingsRequest{
		Settings: []camera.SettingUpdate{
			{Property: "Brightness", Value: 64},
			{Property: "Focus", Auto: true},
			{Property: "Zoom", Value: 5},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("書き込みに失敗しました: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/devices/Front/settings", nil)
	var resp struct {
		Device   string           `json:"device"`
		Settings []camera.Setting `json:"settings"`
	}
	decode(t, rec, &resp)

	if len(resp.Settings) != 17 {
		t.Fatalf("設定の数が一致しません: got %d, want 17", len(resp.Settings))
	}
	values := make(map[string]camera.Setting)
	for _, s := range resp.Settings {
		values[s.Property] = s
	}
	if values["Brightness"].Value != 64 || values["Brightness"].Auto {
		t.Errorf("Brightness が書き込まれていません: %+v", values["Brightness"])
	}
	if !values["Focus"].Auto {
		t.Errorf("Focus が自動になっていません: %+v", values["Focus"])
	}
	if values["Zoom"].Value != 5 || values["Zoom"].Category != camera.CategoryCamera {
		t.Errorf("Zoom が書き込まれていません: %+v", values["Zoom"])
	}

	rec = env.do(t, http.MethodGet, "/api/devices/Front/history?limit=2", nil)
	var history struct {
		History []store.Change `json:"history"`
	}
	decode(t, rec, &history)
	if len(history.History) != 2 || history.History[0].Property != "Zoom" {
		t.Errorf("履歴が一致しません: %+v", history.History)
	}
}

// TestServerResolutions は解像度一覧のレスポンス形式をテストする
func TestServerResolutions(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/devices/Back/resolutions", nil)
	var resp struct {
		Resolutions []map[string]interface{} `json:"resolutions"`
	}
	decode(t, rec, &resp)

	if len(resp.Resolutions) != 3 {
		t.Fatalf("解像度の数が一致しません: got %d, want 3", len(resp.Resolutions))
	}
	first := resp.Resolutions[0]
	if first["width"] != float64(640) || first["height"] != float64(480) || first["type"] != "yuy2" {
		t.Errorf("予期しない解像度: %v", first)
	}
}

// TestServerPresets はプリセットの保存、適用、削除をテストする
func TestServerPresets(t *testing.T) {
	env := newTestEnv(t, true)

	// 現在値をプリセットとして保存
	rec := env.do(t, http.MethodPut, "/api/devices/Front/settings", SetSettingsRequest{
		Settings: []camera.SettingUpdate{{Property: "Gain", Value: 200}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("書き込みに失敗しました: %d", rec.Code)
	}
	rec = env.do(t, http.MethodPut, "/api/presets/bright", PresetRequest{Device: "Front"})
	if rec.Code != http.StatusOK {
		t.Fatalf("プリセットの保存に失敗しました: %d %s", rec.Code, rec.Body.String())
	}
	var saved store.Preset
	decode(t, rec, &saved)
	if saved.Name != "bright" || saved.Device != "Front" || len(saved.Updates) != 17 {
		t.Errorf("予期しないプリセット: %+v", saved)
	}

	// 明示した値だけのプリセット
	rec = env.do(t, http.MethodPut, "/api/presets/dim", PresetRequest{
		Device:   "0",
		Settings: []camera.SettingUpdate{{Property: "Brightness", Value: 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("プリセットの保存に失敗しました: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPut, "/api/presets/broken", PresetRequest{
		Device:   "0",
		Settings: []camera.SettingUpdate{{Property: "Bogus", Value: 1}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("不正なプロパティのプリセットが保存されました: %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/presets", nil)
	var list struct {
		Presets []store.Preset `json:"presets"`
	}
	decode(t, rec, &list)
	if len(list.Presets) != 2 {
		t.Fatalf("プリセットの数が一致しません: got %d, want 2", len(list.Presets))
	}

	// 別のデバイスに適用
	writesBefore := len(env.platform.Writes())
	rec = env.do(t, http.MethodPost, "/api/presets/dim/apply", PresetRequest{Device: "Back"})
	if rec.Code != http.StatusOK {
		t.Fatalf("プリセットの適用に失敗しました: %d %s", rec.Code, rec.Body.String())
	}
	writes := env.platform.Writes()[writesBefore:]
	if len(writes) != 1 || writes[0].Device != "Back" || writes[0].Value != 1 {
		t.Errorf("予期しない書き込み: %+v", writes)
	}

	// 本文なしなら保存時のデバイスに適用
	writesBefore = len(env.platform.Writes())
	rec = env.do(t, http.MethodPost, "/api/presets/dim/apply", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("プリセットの適用に失敗しました: %d %s", rec.Code, rec.Body.String())
	}
	writes = env.platform.Writes()[writesBefore:]
	if len(writes) != 1 || writes[0].Device != "Front" {
		t.Errorf("予期しない書き込み: %+v", writes)
	}

	rec = env.do(t, http.MethodDelete, "/api/presets/dim", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("プリセットの削除に失敗しました: %d", rec.Code)
	}
}

// TestServerStoreDisabled はストアが無効な場合の応答をテストする
func TestServerStoreDisabled(t *testing.T) {
	env := newTestEnv(t, false)

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/devices/Front/history"},
		{http.MethodGet, "/api/presets"},
		{http.MethodPut, "/api/presets/day"},
		{http.MethodPost, "/api/presets/day/apply"},
		{http.MethodDelete, "/api/presets/day"},
	}
	for _, e := range endpoints {
		rec := env.do(t, e.method, e.path, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: got %d, want 503", e.method, e.path, rec.Code)
		}
		var body ErrorResponse
		decode(t, rec, &body)
		if body.Error != "store_disabled" {
			t.Errorf("予期しないエラーコード: %s", body.Error)
		}
	}
}

// TestServerStatus はステータスにキャッシュ数が含まれることをテストする
func TestServerStatus(t *testing.T) {
	env := newTestEnv(t, false)

	if rec := env.do(t, http.MethodPost, "/api/devices/Front/open", nil); rec.Code != http.StatusOK {
		t.Fatalf("Open に失敗しました: %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/status", nil)
	var status struct {
		Backend       string `json:"backend"`
		CachedHandles int    `json:"cachedHandles"`
		Store         bool   `json:"store"`
	}
	decode(t, rec, &status)
	if status.Backend != "mock" || status.CachedHandles != 1 || status.Store {
		t.Errorf("予期しないステータス: %+v", status)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{camera.ErrDeviceNotFound, http.StatusNotFound},
		{store.ErrPresetNotFound, http.StatusNotFound},
		{camera.ErrInvalidProperty, http.StatusBadRequest},
		{camera.ErrInterfaceNotSupported, http.StatusUnprocessableEntity},
		{camera.ErrPinEnumeration, http.StatusInternalServerError},
		{camera.ErrEnvInit, http.StatusInternalServerError},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if status, _ := classifyError(tt.err); status != tt.status {
			t.Errorf("classifyError(%v) = %d, want %d", tt.err, status, tt.status)
		}
	}
}
