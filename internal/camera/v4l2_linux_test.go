//go:build linux

package camera

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blackjack/webcam"
)

func TestExtractDeviceNumber(t *testing.T) {
	tests := []struct {
		device string
		want   int
	}{
		{"/dev/video0", 0},
		{"/dev/video12", 12},
		{"/dev/video", 0},
		{"/dev/videox", 0},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			if got := extractDeviceNumber(tt.device); got != tt.want {
				t.Errorf("extractDeviceNumber(%s) = %d, want %d", tt.device, got, tt.want)
			}
		})
	}
}

func TestV4L2Platform_SkipsNonCaptureNodes(t *testing.T) {
	dir := t.TempDir()
	// 通常ファイルは webcam.Open が拒否するため列挙されない
	for _, name := range []string{"video0", "video10", "video2", "other"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	platform := NewPlatform(PlatformOptions{DeviceDir: dir})
	if platform.Name() != "v4l2" {
		t.Errorf("Expected backend v4l2, got %s", platform.Name())
	}

	env, err := platform.Init()
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if env.Owned() {
		t.Error("Expected V4L2 env not to be owned")
	}
	env.Release()

	devices, err := platform.Devices()
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	defer devices.Release()

	if _, ok := devices.Next(); ok {
		t.Error("Expected no capture candidates")
	}
}

func TestV4L2Platform_DeviceOrder(t *testing.T) {
	p := &v4l2Platform{dir: t.TempDir()}
	for _, name := range []string{"video10", "video2", "video0"} {
		if err := os.WriteFile(filepath.Join(p.dir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	devices, err := p.Devices()
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	paths := devices.(*v4l2Enumerator).paths

	expected := []string{"video0", "video2", "video10"}
	for i, path := range paths {
		if filepath.Base(path) != expected[i] {
			t.Errorf("paths[%d]: expected %s, got %s", i, expected[i], filepath.Base(path))
		}
	}
}

func TestFrameSizeCap(t *testing.T) {
	discrete := frameSizeCap(pixFmtMJPG, webcam.FrameSize{MinWidth: 1280, MaxWidth: 1280, MinHeight: 720, MaxHeight: 720})
	if discrete.Format != FormatVideoInfo || discrete.Subtype != SubtypeMJPG || discrete.Width != 1280 || discrete.Height != 720 {
		t.Errorf("Unexpected discrete cap: %+v", discrete)
	}

	// ステップ指定のサイズは解像度一覧から除外される形式にする
	stepwise := frameSizeCap(pixFmtYUYV, webcam.FrameSize{MinWidth: 320, MaxWidth: 640, StepWidth: 160, MinHeight: 240, MaxHeight: 480, StepHeight: 120})
	if stepwise.Format != FormatOther {
		t.Errorf("Expected stepwise size to be FormatOther, got %v", stepwise.Format)
	}

	if pixelSubtype(pixFmtRGB24) != SubtypeRGB24 {
		t.Error("Expected RGB3 to map to rgb24")
	}
	if pixelSubtype(webcam.PixelFormat(0x3231564e)) != SubtypeUnknown {
		t.Error("Expected NV12 to map to unknown")
	}
}

func TestControlRange(t *testing.T) {
	tests := []struct {
		name    string
		ctrl    webcam.Control
		hasAuto bool
		want    Range
	}{
		{
			name: "driver step",
			ctrl: webcam.Control{Name: "White Balance Temperature", Min: 2800, Max: 6500, Step: 10},
			want: Range{Min: 2800, Max: 6500, Step: 10, Default: 2800, Flags: FlagManual},
		},
		{
			name:    "auto companion",
			ctrl:    webcam.Control{Name: "Focus (absolute)", Min: 0, Max: 250, Step: 5},
			hasAuto: true,
			want:    Range{Min: 0, Max: 250, Step: 5, Default: 0, Flags: FlagManual | FlagAuto},
		},
		{
			name: "zero step falls back to 1",
			ctrl: webcam.Control{Name: "Brightness", Min: -64, Max: 64},
			want: Range{Min: -64, Max: 64, Step: 1, Default: -64, Flags: FlagManual},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := controlRange(tt.ctrl, tt.hasAuto); got != tt.want {
				t.Errorf("controlRange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
