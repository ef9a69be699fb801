// Package store は書き込み履歴とプリセットを sqlite に保存する
package store

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"camctl/internal/camera"
)

// ErrPresetNotFound は指定した名前のプリセットがない場合のエラー
var ErrPresetNotFound = errors.New("preset not found")

// Change は履歴の1件
type Change struct {
	Time     time.Time `json:"time"`
	Device   string    `json:"device"`
	Property string    `json:"prop"`
	Value    int32     `json:"val"`
	Auto     bool      `json:"isAuto"`
	Applied  bool      `json:"applied"`
	Error    string    `json:"error,omitempty"`
}

// Preset は保存済みの設定一式
type Preset struct {
	Name      string                 `json:"name"`
	Device    string                 `json:"device"`
	Updates   []camera.SettingUpdate `json:"settings"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// Store はデータベース接続を保持する
type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

// Open は sqlite データベースを開き、スキーマを移行する
func Open(path string, log *logrus.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "データベースを開けません: %s", path)
	}

	if err := db.AutoMigrate(&DBSettingChange{}, &DBPreset{}); err != nil {
		return nil, errors.Wrap(err, "スキーマの移行に失敗")
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{db: db, log: log.WithField("component", "store")}, nil
}

// Close はデータベース接続を閉じる
func (s *Store) Close() error {
	if db, err := s.db.DB(); err == nil {
		return db.Close()
	}
	return nil
}

// RecordWrite は書き込み試行を履歴に残す。保存の失敗はログにのみ出す
func (s *Store) RecordWrite(device string, update camera.SettingUpdate, err error) {
	row := &DBSettingChange{
		Device:   device,
		Property: update.Property,
		Value:    update.Value,
		Auto:     update.Auto,
		Applied:  err == nil,
	}
	if err != nil {
		row.Error = err.Error()
	}

	if dbErr := s.db.Create(row).Error; dbErr != nil {
		s.log.WithError(dbErr).WithField("device", device).Warn("履歴の保存に失敗")
	}
}

// History は新しい順に履歴を返す。device が空なら全デバイス、limit が 0 以下なら無制限
func (s *Store) History(device string, limit int) ([]Change, error) {
	query := s.db.Order("id desc")
	if device != "" {
		query = query.Where("device = ?", device)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []DBSettingChange
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "履歴の取得に失敗")
	}

	changes := make([]Change, 0, len(rows))
	for _, r := range rows {
		changes = append(changes, Change{
			Time:     r.CreatedAt,
			Device:   r.Device,
			Property: r.Property,
			Value:    r.Value,
			Auto:     r.Auto,
			Applied:  r.Applied,
			Error:    r.Error,
		})
	}
	return changes, nil
}

// SavePreset はプリセットを保存する。同名のプリセットは上書きする
func (s *Store) SavePreset(name, device string, updates []camera.SettingUpdate) error {
	if name == "" {
		return errors.New("プリセット名が空です")
	}

	encoded, err := json.Marshal(updates)
	if err != nil {
		return errors.Wrap(err, "プリセットのエンコードに失敗")
	}

	row := &DBPreset{Name: name, Device: device, Updates: string(encoded)}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"device", "updates", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return errors.Wrapf(err, "プリセット %s の保存に失敗", name)
	}
	return nil
}

// Preset は名前でプリセットを取得する
func (s *Store) Preset(name string) (*Preset, error) {
	var row DBPreset
	err := s.db.Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrPresetNotFound, "%q", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "プリセット %s の取得に失敗", name)
	}
	return toPreset(row)
}

// Presets は名前順にすべてのプリセットを返す
func (s *Store) Presets() ([]Preset, error) {
	var rows []DBPreset
	if err := s.db.Order("name").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "プリセット一覧の取得に失敗")
	}

	presets := make([]Preset, 0, len(rows))
	for _, r := range rows {
		p, err := toPreset(r)
		if err != nil {
			return nil, err
		}
		presets = append(presets, *p)
	}
	return presets, nil
}

// DeletePreset はプリセットを削除する
func (s *Store) DeletePreset(name string) error {
	result := s.db.Unscoped().Where("name = ?", name).Delete(&DBPreset{})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "プリセット %s の削除に失敗", name)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrPresetNotFound, "%q", name)
	}
	return nil
}

func toPreset(row DBPreset) (*Preset, error) {
	var updates []camera.SettingUpdate
	if err := json.Unmarshal([]byte(row.Updates), &updates); err != nil {
		return nil, errors.Wrapf(err, "プリセット %s のデコードに失敗", row.Name)
	}
	return &Preset{
		Name:      row.Name,
		Device:    row.Device,
		Updates:   updates,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
