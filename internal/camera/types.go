package camera

import (
	"fmt"
	"strconv"
	"strings"
)

// Identifier はデバイスを名前または0始まりのインデックスで指す
type Identifier struct {
	Name  string // デバイスのフレンドリ名（インデックス指定時は空）
	Index int    // 列挙順の位置（名前指定時は -1）
}

// ByName は名前で指定する識別子を返す
func ByName(name string) Identifier {
	return Identifier{Name: name, Index: -1}
}

// ByIndex はインデックスで指定する識別子を返す
func ByIndex(index int) Identifier {
	return Identifier{Index: index}
}

// ParseIdentifier は "#0" または数字だけの文字列をインデックス、それ以外を名前として解釈する
//
// String の結果を渡すと元の識別子に戻る。
func ParseIdentifier(s string) Identifier {
	digits := strings.TrimPrefix(s, "#")
	if digits != "" {
		if n, err := strconv.Atoi(digits); err == nil && n >= 0 && strconv.Itoa(n) == digits {
			return ByIndex(n)
		}
	}
	return ByName(s)
}

// IsIndex はインデックス指定かどうかを返す
func (id Identifier) IsIndex() bool {
	return id.Index >= 0
}

// matches は列挙中の候補が識別子に一致するかを判定する
func (id Identifier) matches(position int, friendlyName string) bool {
	if id.IsIndex() {
		return position == id.Index
	}
	return id.Name != "" && friendlyName == id.Name
}

// String はログと履歴に使う表現を返す。インデックスは "#0" の形式
func (id Identifier) String() string {
	if id.IsIndex() {
		return fmt.Sprintf("#%d", id.Index)
	}
	return id.Name
}

// Category はプロパティの系統を表す
type Category string

const (
	CategoryVideo  Category = "video"  // 画質調整（VideoProcAmp）
	CategoryCamera Category = "camera" // 機械・露出制御（CameraControl）
)

// 制御フラグ。取得値の 1 は自動、それ以外は手動として扱う
const (
	FlagAuto   int32 = 0x1
	FlagManual int32 = 0x2
)

// Setting は1つの調整可能なプロパティの状態を表す
type Setting struct {
	Category   Category `json:"ctrlType"`
	Property   string   `json:"prop"`
	Value      int32    `json:"val"`
	Min        int32    `json:"min"`
	Max        int32    `json:"max"`
	Step       int32    `json:"step"`
	Default    int32    `json:"def"`
	RangeFlags int32    `json:"rangeFlags"`
	Auto       bool     `json:"isAuto"`
}

// SettingUpdate は1つのプロパティへの書き込み要求
type SettingUpdate struct {
	Property string `json:"prop" yaml:"prop"`
	Value    int32  `json:"val" yaml:"val"`
	Auto     bool   `json:"isAuto" yaml:"auto"`
}

// flags は書き込み時のモードフラグを返す
func (u SettingUpdate) flags() int32 {
	if u.Auto {
		return FlagAuto
	}
	return FlagManual
}

// UpdatesFromSettings は読み出した設定をそのまま書き戻せる更新要求に変換する
func UpdatesFromSettings(settings []Setting) []SettingUpdate {
	updates := make([]SettingUpdate, 0, len(settings))
	for _, s := range settings {
		updates = append(updates, SettingUpdate{
			Property: s.Property,
			Value:    s.Value,
			Auto:     s.Auto,
		})
	}
	return updates
}

// Resolution は対応する解像度とピクセルフォーマット
type Resolution struct {
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
	Format string `json:"type"`
}

// DeviceInfo は列挙されたデバイスの概要
type DeviceInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Range はプロパティの設定可能範囲
type Range struct {
	Min     int32
	Max     int32
	Step    int32
	Default int32
	Flags   int32
}

// FormatType はストリーム能力のフォーマットブロックの種類
type FormatType int

const (
	FormatOther     FormatType = iota // 解釈しないフォーマット
	FormatVideoInfo                   // VIDEOINFOHEADER 相当
)

// MediaSubtype はピクセルフォーマットの種類
type MediaSubtype int

const (
	SubtypeUnknown MediaSubtype = iota
	SubtypeYUY2
	SubtypeMJPG
	SubtypeRGB24
)

// Tag は解像度一覧に載せるフォーマット名を返す
func (s MediaSubtype) Tag() string {
	switch s {
	case SubtypeYUY2:
		return "yuy2"
	case SubtypeMJPG:
		return "mjpg"
	case SubtypeRGB24:
		return "rgb24"
	default:
		return "unknown"
	}
}

// StreamCap は出力ピンのストリーム能力1件
type StreamCap struct {
	Format  FormatType
	Subtype MediaSubtype
	Width   int32
	Height  int32
}

// WriteRecorder は書き込みの試行結果を受け取る
type WriteRecorder interface {
	RecordWrite(device string, update SettingUpdate, err error)
}
