package store

import (
	"gorm.io/gorm"
)

// DBSettingChange は1回の書き込み試行の記録
type DBSettingChange struct {
	gorm.Model
	Device   string `gorm:"index;not null"`
	Property string `gorm:"not null"`
	Value    int32
	Auto     bool
	Applied  bool
	Error    string
}

// DBPreset は名前付きの設定一式
type DBPreset struct {
	gorm.Model
	Name    string `gorm:"uniqueIndex;not null"`
	Device  string
	Updates string // JSON encoded []camera.SettingUpdate
}
