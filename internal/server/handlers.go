package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"camctl/internal/camera"
	"camctl/internal/store"
)

const defaultHistoryLimit = 50

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SetSettingsRequest は設定書き込みのリクエスト
type SetSettingsRequest struct {
	Settings []camera.SettingUpdate `json:"settings"`
}

// PresetRequest はプリセット保存・適用のリクエスト
//
// 保存時に Settings を省略するとデバイスの現在値を保存する。
// 適用時の Device はプリセットに記録されたデバイスを上書きする。
type PresetRequest struct {
	Device   string                 `json:"device"`
	Settings []camera.SettingUpdate `json:"settings,omitempty"`
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleStatus はステータス確認エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": s.config.Server.Host,
			"port": s.config.Server.Port,
		},
		"backend":       s.controller.Backend(),
		"cachedHandles": s.controller.CacheCount(),
		"store":         s.store != nil,
		"timestamp":     time.Now(),
	})
}

// handleListDevices はデバイス一覧
func (s *Server) handleListDevices(c *gin.Context) {
	devices, err := s.controller.ListDevices(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (s *Server) handleOpen(c *gin.Context) {
	id := camera.ParseIdentifier(c.Param("device"))
	if err := s.controller.Open(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": id.String(), "opened": true})
}

func (s *Server) handleClose(c *gin.Context) {
	id := camera.ParseIdentifier(c.Param("device"))
	if err := s.controller.Close(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": id.String(), "closed": true})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	id := camera.ParseIdentifier(c.Param("device"))
	settings, err := s.controller.GetSettings(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": id.String(), "settings": settings})
}

func (s *Server) handleSetSettings(c *gin.Context) {
	id := camera.ParseIdentifier(c.Param("device"))

	var req SetSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := s.controller.SetSettings(c.Request.Context(), id, req.Settings); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": id.String(), "applied": len(req.Settings)})
}

func (s *Server) handleListResolutions(c *gin.Context) {
	id := camera.ParseIdentifier(c.Param("device"))
	resolutions, err := s.controller.ListResolutions(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": id.String(), "resolutions": resolutions})
}

func (s *Server) handleHistory(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	id := camera.ParseIdentifier(c.Param("device"))

	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondBadRequest(c, errors.Errorf("無効な limit: %q", v))
			return
		}
		limit = n
	}

	changes, err := s.store.History(id.String(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": id.String(), "history": changes})
}

func (s *Server) handleListPresets(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	presets, err := s.store.Presets()
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presets": presets})
}

func (s *Server) handleSavePreset(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	name := c.Param("name")

	var req PresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if req.Device == "" {
		respondBadRequest(c, errors.New("device は必須です"))
		return
	}
	id := camera.ParseIdentifier(req.Device)

	updates := req.Settings
	if len(updates) == 0 {
		settings, err := s.controller.GetSettings(c.Request.Context(), id)
		if err != nil {
			s.respondError(c, err)
			return
		}
		updates = camera.UpdatesFromSettings(settings)
	} else {
		for _, u := range updates {
			if _, _, ok := camera.LookupProperty(u.Property); !ok {
				s.respondError(c, errors.Wrapf(camera.ErrInvalidProperty, "%q", u.Property))
				return
			}
		}
	}

	if err := s.store.SavePreset(name, req.Device, updates); err != nil {
		s.respondError(c, err)
		return
	}
	preset, err := s.store.Preset(name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preset)
}

func (s *Server) handleApplyPreset(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	name := c.Param("name")

	var req PresetRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}

	preset, err := s.store.Preset(name)
	if err != nil {
		s.respondError(c, err)
		return
	}

	device := preset.Device
	if req.Device != "" {
		device = req.Device
	}
	id := camera.ParseIdentifier(device)

	if err := s.controller.SetSettings(c.Request.Context(), id, preset.Updates); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preset": name, "device": id.String(), "applied": len(preset.Updates)})
}

func (s *Server) handleDeletePreset(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	if err := s.store.DeletePreset(c.Param("name")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ヘルパー関数

// requireStore はストアが無効なら 503 を返して false を返す
func (s *Server) requireStore(c *gin.Context) bool {
	if s.store != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:     "store_disabled",
		Message:   "履歴とプリセットの保存は無効です",
		Timestamp: time.Now(),
	})
	return false
}

// respondError はエラーの種類に応じたステータスコードで応答する
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

func respondBadRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     "bad_request",
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

// classifyError はエラーをHTTPステータスとエラーコードに変換する
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, camera.ErrDeviceNotFound):
		return http.StatusNotFound, "device_not_found"
	case errors.Is(err, store.ErrPresetNotFound):
		return http.StatusNotFound, "preset_not_found"
	case errors.Is(err, camera.ErrInvalidProperty):
		return http.StatusBadRequest, "invalid_property"
	case errors.Is(err, camera.ErrInterfaceNotSupported):
		return http.StatusUnprocessableEntity, "interface_not_supported"
	case errors.Is(err, camera.ErrPinEnumeration):
		return http.StatusInternalServerError, "pin_enumeration_failed"
	case errors.Is(err, camera.ErrEnvInit):
		return http.StatusInternalServerError, "environment_init_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
