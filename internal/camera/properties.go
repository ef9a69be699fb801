package camera

import (
	"fmt"
	"sort"
)

// VideoProperty は画質調整プロパティのID（VideoProcAmpProperty と同じ値）
type VideoProperty int32

const (
	Brightness VideoProperty = iota
	Contrast
	Hue
	Saturation
	Sharpness
	Gamma
	ColorEnable
	WhiteBalance
	BacklightCompensation
	Gain
)

// CameraProperty はカメラ制御プロパティのID（CameraControlProperty と同じ値）
type CameraProperty int32

const (
	Pan CameraProperty = iota
	Tilt
	Roll
	Zoom
	Exposure
	Iris
	Focus
)

// propertyEntry はテーブルの1行
type propertyEntry[P ~int32] struct {
	id   P
	name string
}

// propertyTable はプロパティIDと名前の双方向マップ
type propertyTable[P ~int32] struct {
	byID   map[P]string
	byName map[string]P
	order  []P
}

// newPropertyTable は重複のないテーブルを作る
func newPropertyTable[P ~int32](entries []propertyEntry[P]) (*propertyTable[P], error) {
	t := &propertyTable[P]{
		byID:   make(map[P]string, len(entries)),
		byName: make(map[string]P, len(entries)),
	}
	for _, e := range entries {
		if e.name == "" {
			return nil, fmt.Errorf("プロパティ %d の名前が空です", e.id)
		}
		if prev, ok := t.byID[e.id]; ok {
			return nil, fmt.Errorf("プロパティID %d が重複しています: %s, %s", e.id, prev, e.name)
		}
		if _, ok := t.byName[e.name]; ok {
			return nil, fmt.Errorf("プロパティ名 %s が重複しています", e.name)
		}
		t.byID[e.id] = e.name
		t.byName[e.name] = e.id
		t.order = append(t.order, e.id)
	}
	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })
	return t, nil
}

func mustPropertyTable[P ~int32](entries []propertyEntry[P]) *propertyTable[P] {
	t, err := newPropertyTable(entries)
	if err != nil {
		panic(err)
	}
	return t
}

// Name はIDに対応する名前を返す
func (t *propertyTable[P]) Name(id P) (string, bool) {
	name, ok := t.byID[id]
	return name, ok
}

// Lookup は名前に対応するIDを返す
func (t *propertyTable[P]) Lookup(name string) (P, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// IDs はID順の一覧を返す
func (t *propertyTable[P]) IDs() []P {
	return append([]P(nil), t.order...)
}

// Len は登録数を返す
func (t *propertyTable[P]) Len() int {
	return len(t.order)
}

var videoProperties = mustPropertyTable([]propertyEntry[VideoProperty]{
	{Brightness, "Brightness"},
	{Contrast, "Contrast"},
	{Hue, "Hue"},
	{Saturation, "Saturation"},
	{Sharpness, "Sharpness"},
	{Gamma, "Gamma"},
	{ColorEnable, "ColorEnable"},
	{WhiteBalance, "WhiteBalance"},
	{BacklightCompensation, "BacklightCompensation"},
	{Gain, "Gain"},
})

var cameraProperties = mustPropertyTable([]propertyEntry[CameraProperty]{
	{Pan, "Pan"},
	{Tilt, "Tilt"},
	{Roll, "Roll"},
	{Zoom, "Zoom"},
	{Exposure, "Exposure"},
	{Iris, "Iris"},
	{Focus, "Focus"},
})

// String はプロパティ名を返す
func (p VideoProperty) String() string {
	if name, ok := videoProperties.Name(p); ok {
		return name
	}
	return fmt.Sprintf("VideoProperty(%d)", int32(p))
}

// String はプロパティ名を返す
func (p CameraProperty) String() string {
	if name, ok := cameraProperties.Name(p); ok {
		return name
	}
	return fmt.Sprintf("CameraProperty(%d)", int32(p))
}

// PropertyNames はカテゴリごとのプロパティ名をID順に返す
func PropertyNames(category Category) []string {
	var names []string
	switch category {
	case CategoryVideo:
		for _, id := range videoProperties.IDs() {
			names = append(names, id.String())
		}
	case CategoryCamera:
		for _, id := range cameraProperties.IDs() {
			names = append(names, id.String())
		}
	}
	return names
}

// LookupProperty は名前からカテゴリとIDを引く。画質系を先に探す
func LookupProperty(name string) (Category, int32, bool) {
	if id, ok := videoProperties.Lookup(name); ok {
		return CategoryVideo, int32(id), true
	}
	if id, ok := cameraProperties.Lookup(name); ok {
		return CategoryCamera, int32(id), true
	}
	return "", 0, false
}
