//go:build linux

package camera

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

const defaultDeviceDir = "/dev"

// V4L2 制御ID（linux/v4l2-controls.h）
const (
	cidBrightness              webcam.ControlID = 0x00980900
	cidContrast                webcam.ControlID = 0x00980901
	cidSaturation              webcam.ControlID = 0x00980902
	cidHue                     webcam.ControlID = 0x00980903
	cidAutoWhiteBalance        webcam.ControlID = 0x0098090c
	cidGamma                   webcam.ControlID = 0x00980910
	cidAutogain                webcam.ControlID = 0x00980912
	cidGain                    webcam.ControlID = 0x00980913
	cidHueAuto                 webcam.ControlID = 0x00980919
	cidWhiteBalanceTemperature webcam.ControlID = 0x0098091a
	cidSharpness               webcam.ControlID = 0x0098091b
	cidBacklightCompensation   webcam.ControlID = 0x0098091c

	cidExposureAuto     webcam.ControlID = 0x009a0901
	cidExposureAbsolute webcam.ControlID = 0x009a0902
	cidPanAbsolute      webcam.ControlID = 0x009a0908
	cidTiltAbsolute     webcam.ControlID = 0x009a0909
	cidFocusAbsolute    webcam.ControlID = 0x009a090a
	cidFocusAuto        webcam.ControlID = 0x009a090c
	cidZoomAbsolute     webcam.ControlID = 0x009a090d
	cidIrisAbsolute     webcam.ControlID = 0x009a0911
)

// V4L2_EXPOSURE_MANUAL / V4L2_EXPOSURE_APERTURE_PRIORITY
const (
	exposureManual           = 1
	exposureAperturePriority = 3
)

// V4L2 ピクセルフォーマット（fourcc）
const (
	pixFmtYUYV  webcam.PixelFormat = 0x56595559
	pixFmtMJPG  webcam.PixelFormat = 0x47504a4d
	pixFmtRGB24 webcam.PixelFormat = 0x33424752
)

// v4l2Mapping はプロパティに対応する V4L2 制御の組
type v4l2Mapping struct {
	value   webcam.ControlID
	auto    webcam.ControlID // 0 なら自動モードなし
	autoOn  int32
	autoOff int32
}

// ColorEnable と Roll に対応する V4L2 制御はないため、取得は常に失敗する
var v4l2VideoControls = map[int32]v4l2Mapping{
	int32(Brightness):            {value: cidBrightness},
	int32(Contrast):              {value: cidContrast},
	int32(Hue):                   {value: cidHue, auto: cidHueAuto, autoOn: 1, autoOff: 0},
	int32(Saturation):            {value: cidSaturation},
	int32(Sharpness):             {value: cidSharpness},
	int32(Gamma):                 {value: cidGamma},
	int32(WhiteBalance):          {value: cidWhiteBalanceTemperature, auto: cidAutoWhiteBalance, autoOn: 1, autoOff: 0},
	int32(BacklightCompensation): {value: cidBacklightCompensation},
	int32(Gain):                  {value: cidGain, auto: cidAutogain, autoOn: 1, autoOff: 0},
}

var v4l2CameraControls = map[int32]v4l2Mapping{
	int32(Pan):      {value: cidPanAbsolute},
	int32(Tilt):     {value: cidTiltAbsolute},
	int32(Zoom):     {value: cidZoomAbsolute},
	int32(Exposure): {value: cidExposureAbsolute, auto: cidExposureAuto, autoOn: exposureAperturePriority, autoOff: exposureManual},
	int32(Iris):     {value: cidIrisAbsolute},
	int32(Focus):    {value: cidFocusAbsolute, auto: cidFocusAuto, autoOn: 1, autoOff: 0},
}

// NewPlatform は V4L2 バックエンドを返す
func NewPlatform(opts PlatformOptions) Platform {
	dir := opts.DeviceDir
	if dir == "" {
		dir = defaultDeviceDir
	}
	return &v4l2Platform{dir: dir}
}

// v4l2Platform は blackjack/webcam 経由で V4L2 デバイスを操作する
type v4l2Platform struct {
	dir string
}

func (p *v4l2Platform) Name() string {
	return "v4l2"
}

// Init は何もしない。V4L2 にはプロセス単位の初期化がない
func (p *v4l2Platform) Init() (Env, error) {
	return nopEnv{}, nil
}

// Devices は video* ノードを番号順に列挙する
func (p *v4l2Platform) Devices() (DeviceEnumerator, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, "video*"))
	if err != nil {
		return nil, errors.Wrapf(err, "デバイスのスキャンに失敗: %s", p.dir)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	return &v4l2Enumerator{paths: matches}, nil
}

var deviceNumberPattern = regexp.MustCompile(`video(\d+)$`)

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// v4l2Enumerator はキャプチャに対応するノードだけを候補として返す
//
// メタデータ用ノードなど webcam.Open が拒否するものは列挙に含めない。
type v4l2Enumerator struct {
	paths []string
	next  int
}

func (e *v4l2Enumerator) Next() (Candidate, bool) {
	for e.next < len(e.paths) {
		path := e.paths[e.next]
		e.next++

		cam, err := webcam.Open(path)
		if err != nil {
			continue
		}
		return &v4l2Candidate{path: path, cam: cam}, true
	}
	return nil, false
}

func (e *v4l2Enumerator) Release() {}

type v4l2Candidate struct {
	path string
	cam  *webcam.Webcam
}

func (c *v4l2Candidate) FriendlyName() (string, error) {
	name, err := c.cam.GetName()
	if err != nil {
		return "", errors.Wrapf(err, "VIDIOC_QUERYCAP failed: %s", c.path)
	}
	return name, nil
}

// Bind はデバイスの所有権をフィルタへ移す
func (c *v4l2Candidate) Bind() (Filter, error) {
	if c.cam == nil {
		return nil, errors.Errorf("デバイスは既にバインド済みです: %s", c.path)
	}
	f := &v4l2Filter{path: c.path, cam: c.cam, refs: 1}
	c.cam = nil
	return f, nil
}

func (c *v4l2Candidate) Release() {
	if c.cam != nil {
		_ = c.cam.Close()
		c.cam = nil
	}
}

// v4l2Filter は開いたデバイスノード。派生したハンドルが残る間は閉じない
type v4l2Filter struct {
	path string
	cam  *webcam.Webcam
	refs int32
}

func (f *v4l2Filter) retain() {
	atomic.AddInt32(&f.refs, 1)
}

func (f *v4l2Filter) Release() {
	if atomic.AddInt32(&f.refs, -1) == 0 {
		_ = f.cam.Close()
	}
}

func (f *v4l2Filter) VideoProcAmp() (PropertyControl, error) {
	f.retain()
	return &v4l2Control{filter: f, mappings: v4l2VideoControls}, nil
}

func (f *v4l2Filter) CameraControl() (PropertyControl, error) {
	f.retain()
	return &v4l2Control{filter: f, mappings: v4l2CameraControls}, nil
}

// Pins はキャプチャノード自身を唯一の出力ピンとして返す
func (f *v4l2Filter) Pins() (PinEnumerator, error) {
	f.retain()
	return &v4l2PinEnumerator{filter: f}, nil
}

type v4l2Control struct {
	filter   *v4l2Filter
	mappings map[int32]v4l2Mapping
	released bool
}

func (c *v4l2Control) mapping(property int32) (v4l2Mapping, webcam.Control, map[webcam.ControlID]webcam.Control, error) {
	m, ok := c.mappings[property]
	if !ok {
		return v4l2Mapping{}, webcam.Control{}, nil, errors.Errorf("property %d has no V4L2 control", property)
	}
	controls := c.filter.cam.GetControls()
	ctrl, ok := controls[m.value]
	if !ok {
		return v4l2Mapping{}, webcam.Control{}, nil, errors.Errorf("control 0x%08x not supported by %s", uint32(m.value), c.filter.path)
	}
	return m, ctrl, controls, nil
}

// GetRange は範囲を返す
func (c *v4l2Control) GetRange(property int32) (Range, error) {
	m, ctrl, controls, err := c.mapping(property)
	if err != nil {
		return Range{}, err
	}
	_, hasAuto := controls[m.auto]
	return controlRange(ctrl, m.auto != 0 && hasAuto), nil
}

// controlRange は V4L2 のコントロール情報を Range に変換する
//
// blackjack/webcam は既定値を公開しないため最小値を使う。刻みが 0 なら 1 とする。
func controlRange(ctrl webcam.Control, hasAuto bool) Range {
	step := ctrl.Step
	if step <= 0 {
		step = 1
	}
	flags := FlagManual
	if hasAuto {
		flags |= FlagAuto
	}
	return Range{
		Min:     ctrl.Min,
		Max:     ctrl.Max,
		Step:    step,
		Default: ctrl.Min,
		Flags:   flags,
	}
}

func (c *v4l2Control) Get(property int32) (int32, int32, error) {
	m, _, controls, err := c.mapping(property)
	if err != nil {
		return 0, 0, err
	}

	value, err := c.filter.cam.GetControl(m.value)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "VIDIOC_G_CTRL 0x%08x failed", uint32(m.value))
	}

	flags := FlagManual
	if _, ok := controls[m.auto]; m.auto != 0 && ok {
		if mode, err := c.filter.cam.GetControl(m.auto); err == nil && mode != m.autoOff {
			flags = FlagAuto
		}
	}
	return value, flags, nil
}

// Set は自動モード用の制御を切り替えてから、手動なら値を書き込む
func (c *v4l2Control) Set(property int32, value int32, flags int32) error {
	m, _, controls, err := c.mapping(property)
	if err != nil {
		return err
	}

	_, hasAuto := controls[m.auto]
	hasAuto = hasAuto && m.auto != 0

	if flags == FlagAuto {
		if !hasAuto {
			return errors.Errorf("control 0x%08x has no automatic mode", uint32(m.value))
		}
		if err := c.filter.cam.SetControl(m.auto, m.autoOn); err != nil {
			return errors.Wrapf(err, "VIDIOC_S_CTRL 0x%08x failed", uint32(m.auto))
		}
		return nil
	}

	if hasAuto {
		if err := c.filter.cam.SetControl(m.auto, m.autoOff); err != nil {
			return errors.Wrapf(err, "VIDIOC_S_CTRL 0x%08x failed", uint32(m.auto))
		}
	}
	if err := c.filter.cam.SetControl(m.value, value); err != nil {
		return errors.Wrapf(err, "VIDIOC_S_CTRL 0x%08x failed", uint32(m.value))
	}
	return nil
}

func (c *v4l2Control) Release() {
	if !c.released {
		c.released = true
		c.filter.Release()
	}
}

type v4l2PinEnumerator struct {
	filter   *v4l2Filter
	done     bool
	released bool
}

func (e *v4l2PinEnumerator) Next() (Pin, bool) {
	if e.done {
		return nil, false
	}
	e.done = true
	e.filter.retain()
	return &v4l2Pin{filter: e.filter}, true
}

func (e *v4l2PinEnumerator) Release() {
	if !e.released {
		e.released = true
		e.filter.Release()
	}
}

type v4l2Pin struct {
	filter   *v4l2Filter
	released bool
}

// StreamConfig は対応フォーマットとフレームサイズを読み出す
func (p *v4l2Pin) StreamConfig() (StreamConfig, error) {
	formats := p.filter.cam.GetSupportedFormats()
	codes := make([]webcam.PixelFormat, 0, len(formats))
	for code := range formats {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	var caps []StreamCap
	for _, code := range codes {
		for _, size := range p.filter.cam.GetSupportedFrameSizes(code) {
			caps = append(caps, frameSizeCap(code, size))
		}
	}
	return &v4l2StreamConfig{caps: caps}, nil
}

func (p *v4l2Pin) Release() {
	if !p.released {
		p.released = true
		p.filter.Release()
	}
}

// frameSizeCap は固定サイズを VIDEOINFO 相当、ステップ指定のサイズをそれ以外として扱う
func frameSizeCap(code webcam.PixelFormat, size webcam.FrameSize) StreamCap {
	format := FormatVideoInfo
	if size.StepWidth != 0 || size.StepHeight != 0 {
		format = FormatOther
	}
	return StreamCap{
		Format:  format,
		Subtype: pixelSubtype(code),
		Width:   int32(size.MaxWidth),
		Height:  int32(size.MaxHeight),
	}
}

func pixelSubtype(code webcam.PixelFormat) MediaSubtype {
	switch code {
	case pixFmtYUYV:
		return SubtypeYUY2
	case pixFmtMJPG:
		return SubtypeMJPG
	case pixFmtRGB24:
		return SubtypeRGB24
	default:
		return SubtypeUnknown
	}
}

type v4l2StreamConfig struct {
	caps []StreamCap
}

func (s *v4l2StreamConfig) NumCaps() (int, error) {
	return len(s.caps), nil
}

func (s *v4l2StreamConfig) Cap(index int) (StreamCap, error) {
	if index < 0 || index >= len(s.caps) {
		return StreamCap{}, errors.Errorf("capability %d out of range", index)
	}
	return s.caps[index], nil
}

func (s *v4l2StreamConfig) Release() {}
