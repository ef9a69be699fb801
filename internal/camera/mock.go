package camera

import (
	"sync"

	"github.com/pkg/errors"
)

// MockProperty はモックデバイスの1プロパティ
type MockProperty struct {
	Range    Range
	Value    int32
	Flags    int32
	RangeErr error
	GetErr   error
	SetErr   error
}

// MockPin はモックデバイスの出力ピン
type MockPin struct {
	NoStreamConfig bool
	CapsErr        error
	Caps           []StreamCap
	CapErrs        map[int]error
}

// MockDevice はテスト用のシミュレートされたデバイス
type MockDevice struct {
	Name            string
	NameErr         error
	BindErr         error
	NoVideoProcAmp  bool
	NoCameraControl bool
	PinsErr         error
	Video           map[VideoProperty]*MockProperty
	Camera          map[CameraProperty]*MockProperty
	Pins            []MockPin
}

// MockWrite は Set に渡された引数の記録
type MockWrite struct {
	Device   string
	Category Category
	Property int32
	Value    int32
	Flags    int32
}

// NewMockDevice は全プロパティと一般的な解像度を持つモックデバイスを作成する
func NewMockDevice(name string) *MockDevice {
	d := &MockDevice{
		Name:   name,
		Video:  make(map[VideoProperty]*MockProperty),
		Camera: make(map[CameraProperty]*MockProperty),
	}
	for _, p := range videoProperties.IDs() {
		d.Video[p] = &MockProperty{
			Range: Range{Min: 0, Max: 255, Step: 1, Default: 128, Flags: FlagAuto | FlagManual},
			Value: 128,
			Flags: FlagManual,
		}
	}
	for _, p := range cameraProperties.IDs() {
		d.Camera[p] = &MockProperty{
			Range: Range{Min: -10, Max: 10, Step: 1, Default: 0, Flags: FlagAuto | FlagManual},
			Value: 0,
			Flags: FlagAuto,
		}
	}
	d.Pins = []MockPin{
		{
			Caps: []StreamCap{
				{Format: FormatVideoInfo, Subtype: SubtypeYUY2, Width: 640, Height: 480},
				{Format: FormatVideoInfo, Subtype: SubtypeMJPG, Width: 1280, Height: 720},
				{Format: FormatVideoInfo, Subtype: SubtypeMJPG, Width: 1920, Height: 1080},
			},
		},
		// プレビューピンなど、ストリーム設定を持たないピン
		{NoStreamConfig: true},
	}
	return d
}

// MockPlatform はハンドルの取得と解放を数えるテスト用 Platform
type MockPlatform struct {
	mu      sync.Mutex
	devices []*MockDevice

	InitErr    error
	DevicesErr error

	// ThreadBoundHandles は呼び出し間でハンドルを保持できないバックエンドを模す
	ThreadBoundHandles bool

	inits       int
	envReleases int
	outstanding int
	writes      []MockWrite
}

// NewMockPlatform は新しい MockPlatform を作成する
func NewMockPlatform(devices ...*MockDevice) *MockPlatform {
	return &MockPlatform{devices: devices}
}

// Name はバックエンド名を返す
func (m *MockPlatform) Name() string {
	return "mock"
}

// ThreadBound は ThreadBoundHandles を返す
func (m *MockPlatform) ThreadBound() bool {
	return m.ThreadBoundHandles
}

// Init はランタイム環境の初期化を記録する
func (m *MockPlatform) Init() (Env, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InitErr != nil {
		return nil, m.InitErr
	}
	m.inits++
	return &mockEnv{platform: m}, nil
}

// Devices はデバイス列挙子を返す
func (m *MockPlatform) Devices() (DeviceEnumerator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DevicesErr != nil {
		return nil, m.DevicesErr
	}
	m.outstanding++
	devices := append([]*MockDevice(nil), m.devices...)
	return &mockEnumerator{mockHandle: mockHandle{platform: m}, devices: devices}, nil
}

// AddDevice はデバイスを列挙の末尾に追加する
func (m *MockPlatform) AddDevice(d *MockDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, d)
}

// RemoveDevice は名前が一致するデバイスを取り除く
func (m *MockPlatform) RemoveDevice(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d.Name == name {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return
		}
	}
}

// Inits は Init の成功回数を返す
func (m *MockPlatform) Inits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inits
}

// EnvReleases は Env.Release の回数を返す
func (m *MockPlatform) EnvReleases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.envReleases
}

// Outstanding は未解放のハンドル数を返す
func (m *MockPlatform) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outstanding
}

// Writes は Set に渡された引数を順に返す
func (m *MockPlatform) Writes() []MockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockWrite(nil), m.writes...)
}

type mockEnv struct {
	platform *MockPlatform
	released bool
}

func (e *mockEnv) Owned() bool { return true }

func (e *mockEnv) Release() {
	e.platform.mu.Lock()
	defer e.platform.mu.Unlock()
	if !e.released {
		e.released = true
		e.platform.envReleases++
	}
}

// mockHandle は二重解放を数えないための共通部分
type mockHandle struct {
	platform *MockPlatform
	released bool
}

func (h *mockHandle) Release() {
	h.platform.mu.Lock()
	defer h.platform.mu.Unlock()
	if !h.released {
		h.released = true
		h.platform.outstanding--
	}
}

func (m *MockPlatform) acquire() mockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outstanding++
	return mockHandle{platform: m}
}

type mockEnumerator struct {
	mockHandle
	devices []*MockDevice
	next    int
}

func (e *mockEnumerator) Next() (Candidate, bool) {
	if e.next >= len(e.devices) {
		return nil, false
	}
	d := e.devices[e.next]
	e.next++
	return &mockCandidate{mockHandle: e.platform.acquire(), device: d}, true
}

type mockCandidate struct {
	mockHandle
	device *MockDevice
}

func (c *mockCandidate) FriendlyName() (string, error) {
	if c.device.NameErr != nil {
		return "", c.device.NameErr
	}
	return c.device.Name, nil
}

func (c *mockCandidate) Bind() (Filter, error) {
	if c.device.BindErr != nil {
		return nil, c.device.BindErr
	}
	return &mockFilter{mockHandle: c.platform.acquire(), device: c.device}, nil
}

type mockFilter struct {
	mockHandle
	device *MockDevice
}

func (f *mockFilter) VideoProcAmp() (PropertyControl, error) {
	if f.device.NoVideoProcAmp {
		return nil, errors.Errorf("QueryInterface(IAMVideoProcAmp) failed: 0x80004002")
	}
	return &mockControl{mockHandle: f.platform.acquire(), device: f.device, category: CategoryVideo}, nil
}

func (f *mockFilter) CameraControl() (PropertyControl, error) {
	if f.device.NoCameraControl {
		return nil, errors.Errorf("QueryInterface(IAMCameraControl) failed: 0x80004002")
	}
	return &mockControl{mockHandle: f.platform.acquire(), device: f.device, category: CategoryCamera}, nil
}

func (f *mockFilter) Pins() (PinEnumerator, error) {
	if f.device.PinsErr != nil {
		return nil, f.device.PinsErr
	}
	return &mockPinEnumerator{mockHandle: f.platform.acquire(), pins: f.device.Pins}, nil
}

type mockControl struct {
	mockHandle
	device   *MockDevice
	category Category
}

// property はロック済み前提で呼ぶ
func (c *mockControl) property(id int32) (*MockProperty, error) {
	var p *MockProperty
	switch c.category {
	case CategoryVideo:
		p = c.device.Video[VideoProperty(id)]
	case CategoryCamera:
		p = c.device.Camera[CameraProperty(id)]
	}
	if p == nil {
		return nil, errors.Errorf("property %d not supported: 0x80070490", id)
	}
	return p, nil
}

func (c *mockControl) GetRange(id int32) (Range, error) {
	c.platform.mu.Lock()
	defer c.platform.mu.Unlock()

	p, err := c.property(id)
	if err != nil {
		return Range{}, err
	}
	if p.RangeErr != nil {
		return Range{}, p.RangeErr
	}
	return p.Range, nil
}

func (c *mockControl) Get(id int32) (int32, int32, error) {
	c.platform.mu.Lock()
	defer c.platform.mu.Unlock()

	p, err := c.property(id)
	if err != nil {
		return 0, 0, err
	}
	if p.GetErr != nil {
		return 0, 0, p.GetErr
	}
	return p.Value, p.Flags, nil
}

func (c *mockControl) Set(id int32, value int32, flags int32) error {
	c.platform.mu.Lock()
	defer c.platform.mu.Unlock()

	c.platform.writes = append(c.platform.writes, MockWrite{
		Device:   c.device.Name,
		Category: c.category,
		Property: id,
		Value:    value,
		Flags:    flags,
	})

	p, err := c.property(id)
	if err != nil {
		return err
	}
	if p.SetErr != nil {
		return p.SetErr
	}
	if value < p.Range.Min || value > p.Range.Max {
		return errors.Errorf("value %d out of range [%d, %d]: 0x80070057", value, p.Range.Min, p.Range.Max)
	}
	p.Value = value
	p.Flags = flags
	return nil
}

type mockPinEnumerator struct {
	mockHandle
	pins []MockPin
	next int
}

func (e *mockPinEnumerator) Next() (Pin, bool) {
	if e.next >= len(e.pins) {
		return nil, false
	}
	p := e.pins[e.next]
	e.next++
	return &mockPin{mockHandle: e.platform.acquire(), pin: p}, true
}

type mockPin struct {
	mockHandle
	pin MockPin
}

func (p *mockPin) StreamConfig() (StreamConfig, error) {
	if p.pin.NoStreamConfig {
		return nil, errors.Errorf("QueryInterface(IAMStreamConfig) failed: 0x80004002")
	}
	return &mockStreamConfig{mockHandle: p.platform.acquire(), pin: p.pin}, nil
}

type mockStreamConfig struct {
	mockHandle
	pin MockPin
}

func (s *mockStreamConfig) NumCaps() (int, error) {
	if s.pin.CapsErr != nil {
		return 0, s.pin.CapsErr
	}
	return len(s.pin.Caps), nil
}

func (s *mockStreamConfig) Cap(index int) (StreamCap, error) {
	if err := s.pin.CapErrs[index]; err != nil {
		return StreamCap{}, err
	}
	if index < 0 || index >= len(s.pin.Caps) {
		return StreamCap{}, errors.Errorf("capability %d out of range", index)
	}
	return s.pin.Caps[index], nil
}
