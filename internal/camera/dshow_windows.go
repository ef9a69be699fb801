//go:build windows

package camera

import (
	"runtime"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// DirectShow GUID
var (
	clsidSystemDeviceEnum         = windows.GUID{Data1: 0x62be5d10, Data2: 0x60eb, Data3: 0x11d0, Data4: [8]byte{0xbd, 0x3b, 0x00, 0xa0, 0xc9, 0x11, 0xce, 0x86}}
	clsidVideoInputDeviceCategory = windows.GUID{Data1: 0x860bb310, Data2: 0x5d01, Data3: 0x11d0, Data4: [8]byte{0xbd, 0x3b, 0x00, 0xa0, 0xc9, 0x11, 0xce, 0x86}}
	iidICreateDevEnum             = windows.GUID{Data1: 0x29840822, Data2: 0x5b84, Data3: 0x11d0, Data4: [8]byte{0xbd, 0x3b, 0x00, 0xa0, 0xc9, 0x11, 0xce, 0x86}}
	iidIPropertyBag               = windows.GUID{Data1: 0x55272a00, Data2: 0x42cb, Data3: 0x11ce, Data4: [8]byte{0x81, 0x35, 0x00, 0xaa, 0x00, 0x4b, 0xb8, 0x51}}
	iidIBaseFilter                = windows.GUID{Data1: 0x56a86895, Data2: 0x0ad4, Data3: 0x11ce, Data4: [8]byte{0xb0, 0x3a, 0x00, 0x20, 0xaf, 0x0b, 0xa7, 0x70}}
	iidIAMCameraControl           = windows.GUID{Data1: 0xc6e13370, Data2: 0x30ac, Data3: 0x11d0, Data4: [8]byte{0xa1, 0x8c, 0x00, 0xa0, 0xc9, 0x11, 0x89, 0x56}}
	iidIAMVideoProcAmp            = windows.GUID{Data1: 0xc6e13360, Data2: 0x30ac, Data3: 0x11d0, Data4: [8]byte{0xa1, 0x8c, 0x00, 0xa0, 0xc9, 0x11, 0x89, 0x56}}
	iidIAMStreamConfig            = windows.GUID{Data1: 0xc6e13340, Data2: 0x30ac, Data3: 0x11d0, Data4: [8]byte{0xa1, 0x8c, 0x00, 0xa0, 0xc9, 0x11, 0x89, 0x56}}
	formatVideoInfo               = windows.GUID{Data1: 0x05589f80, Data2: 0xc356, Data3: 0x11ce, Data4: [8]byte{0xbf, 0x01, 0x00, 0xaa, 0x00, 0x55, 0x59, 0x5a}}
	mediaSubtypeYUY2              = windows.GUID{Data1: 0x32595559, Data2: 0x0000, Data3: 0x0010, Data4: [8]byte{0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71}}
	mediaSubtypeMJPG              = windows.GUID{Data1: 0x47504a4d, Data2: 0x0000, Data3: 0x0010, Data4: [8]byte{0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71}}
	mediaSubtypeRGB24             = windows.GUID{Data1: 0xe436eb7d, Data2: 0x524f, Data3: 0x11ce, Data4: [8]byte{0x9f, 0x53, 0x00, 0x20, 0xaf, 0x0b, 0xa7, 0x70}}
)

const (
	sOK             = 0x00000000
	sFalse          = 0x00000001
	rpcEChangedMode = 0x80010106
	coinitApartment = 0x2
	coinitMultithrd = 0x0
	clsctxInprocSrv = 0x1
	vtBSTR          = 8
)

var (
	modole32    = windows.NewLazySystemDLL("ole32.dll")
	modoleaut32 = windows.NewLazySystemDLL("oleaut32.dll")

	procCoInitializeEx   = modole32.NewProc("CoInitializeEx")
	procCoUninitialize   = modole32.NewProc("CoUninitialize")
	procCoCreateInstance = modole32.NewProc("CoCreateInstance")
	procVariantClear     = modoleaut32.NewProc("VariantClear")
)

var friendlyNameKey = windows.StringToUTF16Ptr("FriendlyName")

func failed(hr uintptr) bool {
	return int32(hr) < 0
}

func hresultError(call string, hr uintptr) error {
	return errors.Errorf("%s failed: 0x%08x", call, uint32(hr))
}

// iUnknownVtbl はすべての COM インターフェースの先頭
type iUnknownVtbl struct {
	QueryInterface uintptr
	AddRef         uintptr
	Release        uintptr
}

// comObject は vtable ポインタを先頭に持つ COM オブジェクト
type comObject struct {
	vtbl unsafe.Pointer
}

func (o *comObject) unknown() *iUnknownVtbl {
	return (*iUnknownVtbl)(o.vtbl)
}

func (o *comObject) release() {
	if o != nil && o.vtbl != nil {
		syscall.SyscallN(o.unknown().Release, uintptr(unsafe.Pointer(o)))
	}
}

func (o *comObject) queryInterface(iid *windows.GUID) (*comObject, error) {
	var out *comObject
	hr, _, _ := syscall.SyscallN(o.unknown().QueryInterface,
		uintptr(unsafe.Pointer(o)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)))
	if failed(hr) || out == nil {
		return nil, hresultError("QueryInterface", hr)
	}
	return out, nil
}

type iCreateDevEnumVtbl struct {
	iUnknownVtbl
	CreateClassEnumerator uintptr
}

type iEnumVtbl struct {
	iUnknownVtbl
	Next  uintptr
	Skip  uintptr
	Reset uintptr
	Clone uintptr
}

type iMonikerVtbl struct {
	iUnknownVtbl
	GetClassID    uintptr
	IsDirty       uintptr
	Load          uintptr
	Save          uintptr
	GetSizeMax    uintptr
	BindToObject  uintptr
	BindToStorage uintptr
}

type iPropertyBagVtbl struct {
	iUnknownVtbl
	Read  uintptr
	Write uintptr
}

type iBaseFilterVtbl struct {
	iUnknownVtbl
	GetClassID    uintptr
	Stop          uintptr
	Pause         uintptr
	Run           uintptr
	GetState      uintptr
	SetSyncSource uintptr
	GetSyncSource uintptr
	EnumPins      uintptr
}

// IAMVideoProcAmp と IAMCameraControl は同じ並びを持つ
type iAMPropertyVtbl struct {
	iUnknownVtbl
	GetRange uintptr
	Set      uintptr
	Get      uintptr
}

type iAMStreamConfigVtbl struct {
	iUnknownVtbl
	SetFormat               uintptr
	GetFormat               uintptr
	GetNumberOfCapabilities uintptr
	GetStreamCaps           uintptr
}

type variant struct {
	vt        uint16
	reserved1 uint16
	reserved2 uint16
	reserved3 uint16
	val       uintptr
	pad       uintptr
}

type amMediaType struct {
	majortype            windows.GUID
	subtype              windows.GUID
	bFixedSizeSamples    int32
	bTemporalCompression int32
	lSampleSize          uint32
	formattype           windows.GUID
	pUnk                 *comObject
	cbFormat             uint32
	pbFormat             uintptr
}

type bitmapInfoHeader struct {
	biSize          uint32
	biWidth         int32
	biHeight        int32
	biPlanes        uint16
	biBitCount      uint16
	biCompression   uint32
	biSizeImage     uint32
	biXPelsPerMeter int32
	biYPelsPerMeter int32
	biClrUsed       uint32
	biClrImportant  uint32
}

type videoInfoHeader struct {
	rcSource        [4]int32
	rcTarget        [4]int32
	dwBitRate       uint32
	dwBitErrorRate  uint32
	AvgTimePerFrame int64
	bmiHeader       bitmapInfoHeader
}

// freeMediaType は GetStreamCaps が確保した AM_MEDIA_TYPE を解放する
func freeMediaType(mt *amMediaType) {
	if mt == nil {
		return
	}
	if mt.cbFormat != 0 && mt.pbFormat != 0 {
		windows.CoTaskMemFree(unsafe.Pointer(mt.pbFormat))
	}
	if mt.pUnk != nil {
		mt.pUnk.release()
	}
	windows.CoTaskMemFree(unsafe.Pointer(mt))
}

// dshowEnv は呼び出しスレッドの COM 初期化状態
type dshowEnv struct {
	owned    bool
	released bool
}

func (e *dshowEnv) Owned() bool {
	return e.owned
}

func (e *dshowEnv) Release() {
	if e.released {
		return
	}
	e.released = true
	if e.owned {
		syscall.SyscallN(procCoUninitialize.Addr())
	}
	runtime.UnlockOSThread()
}

// initCOM はアパートメントスレッドで初期化し、既に別モードなら MTA で再試行する
//
// COM の初期化はスレッド単位なので、Release までゴルーチンを OS スレッドに固定する。
func initCOM() (Env, error) {
	runtime.LockOSThread()

	hr, _, _ := syscall.SyscallN(procCoInitializeEx.Addr(), 0, coinitApartment)
	if hr == rpcEChangedMode {
		hr, _, _ = syscall.SyscallN(procCoInitializeEx.Addr(), 0, coinitMultithrd)
	}
	if failed(hr) {
		runtime.UnlockOSThread()
		return nil, hresultError("CoInitializeEx", hr)
	}
	return &dshowEnv{owned: hr == sOK}, nil
}

// createDeviceEnumerator はビデオ入力カテゴリの IEnumMoniker を作成する
//
// カテゴリにデバイスがない場合 CreateClassEnumerator は S_FALSE を返すため空の列挙子を返す。
func createDeviceEnumerator() (DeviceEnumerator, error) {
	var devEnum *comObject
	hr, _, _ := syscall.SyscallN(procCoCreateInstance.Addr(),
		uintptr(unsafe.Pointer(&clsidSystemDeviceEnum)),
		0,
		clsctxInprocSrv,
		uintptr(unsafe.Pointer(&iidICreateDevEnum)),
		uintptr(unsafe.Pointer(&devEnum)))
	if failed(hr) || devEnum == nil {
		return nil, hresultError("CoCreateInstance(SystemDeviceEnum)", hr)
	}
	defer devEnum.release()

	var monikers *comObject
	vtbl := (*iCreateDevEnumVtbl)(devEnum.vtbl)
	hr, _, _ = syscall.SyscallN(vtbl.CreateClassEnumerator,
		uintptr(unsafe.Pointer(devEnum)),
		uintptr(unsafe.Pointer(&clsidVideoInputDeviceCategory)),
		uintptr(unsafe.Pointer(&monikers)),
		0)
	if failed(hr) {
		return nil, hresultError("CreateClassEnumerator", hr)
	}
	if hr == sFalse || monikers == nil {
		return &dshowMonikerEnum{}, nil
	}
	return &dshowMonikerEnum{enum: monikers}, nil
}

// nextItem は IEnumMoniker / IEnumPins の Next を1件ずつ呼ぶ
func nextItem(enum *comObject) (*comObject, bool) {
	if enum == nil {
		return nil, false
	}
	var item *comObject
	var fetched uint32
	vtbl := (*iEnumVtbl)(enum.vtbl)
	hr, _, _ := syscall.SyscallN(vtbl.Next,
		uintptr(unsafe.Pointer(enum)),
		1,
		uintptr(unsafe.Pointer(&item)),
		uintptr(unsafe.Pointer(&fetched)))
	if hr != sOK || fetched == 0 || item == nil {
		return nil, false
	}
	return item, true
}

type dshowMonikerEnum struct {
	enum *comObject
}

func (e *dshowMonikerEnum) Next() (Candidate, bool) {
	moniker, ok := nextItem(e.enum)
	if !ok {
		return nil, false
	}
	return &dshowCandidate{moniker: moniker}, true
}

func (e *dshowMonikerEnum) Release() {
	e.enum.release()
	e.enum = nil
}

type dshowCandidate struct {
	moniker *comObject
}

// FriendlyName はモニカのプロパティバッグから FriendlyName を読む
func (c *dshowCandidate) FriendlyName() (string, error) {
	var bag *comObject
	vtbl := (*iMonikerVtbl)(c.moniker.vtbl)
	hr, _, _ := syscall.SyscallN(vtbl.BindToStorage,
		uintptr(unsafe.Pointer(c.moniker)),
		0,
		0,
		uintptr(unsafe.Pointer(&iidIPropertyBag)),
		uintptr(unsafe.Pointer(&bag)))
	if failed(hr) || bag == nil {
		return "", hresultError("BindToStorage(IPropertyBag)", hr)
	}
	defer bag.release()

	var v variant
	bagVtbl := (*iPropertyBagVtbl)(bag.vtbl)
	hr, _, _ = syscall.SyscallN(bagVtbl.Read,
		uintptr(unsafe.Pointer(bag)),
		uintptr(unsafe.Pointer(friendlyNameKey)),
		uintptr(unsafe.Pointer(&v)),
		0)
	defer syscall.SyscallN(procVariantClear.Addr(), uintptr(unsafe.Pointer(&v)))
	if failed(hr) {
		return "", hresultError("IPropertyBag.Read(FriendlyName)", hr)
	}
	if v.vt != vtBSTR || v.val == 0 {
		return "", errors.Errorf("FriendlyName has unexpected variant type %d", v.vt)
	}
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(v.val))), nil
}

func (c *dshowCandidate) Bind() (Filter, error) {
	var filter *comObject
	vtbl := (*iMonikerVtbl)(c.moniker.vtbl)
	hr, _, _ := syscall.SyscallN(vtbl.BindToObject,
		uintptr(unsafe.Pointer(c.moniker)),
		0,
		0,
		uintptr(unsafe.Pointer(&iidIBaseFilter)),
		uintptr(unsafe.Pointer(&filter)))
	if failed(hr) || filter == nil {
		return nil, hresultError("BindToObject(IBaseFilter)", hr)
	}
	return &dshowFilter{obj: filter}, nil
}

func (c *dshowCandidate) Release() {
	c.moniker.release()
	c.moniker = nil
}

type dshowFilter struct {
	obj *comObject
}

func (f *dshowFilter) VideoProcAmp() (PropertyControl, error) {
	obj, err := f.obj.queryInterface(&iidIAMVideoProcAmp)
	if err != nil {
		return nil, errors.Wrap(err, "IAMVideoProcAmp")
	}
	return &dshowPropertyControl{obj: obj}, nil
}

func (f *dshowFilter) CameraControl() (PropertyControl, error) {
	obj, err := f.obj.queryInterface(&iidIAMCameraControl)
	if err != nil {
		return nil, errors.Wrap(err, "IAMCameraControl")
	}
	return &dshowPropertyControl{obj: obj}, nil
}

func (f *dshowFilter) Pins() (PinEnumerator, error) {
	var pins *comObject
	vtbl := (*iBaseFilterVtbl)(f.obj.vtbl)
	hr, _, _ := syscall.SyscallN(vtbl.EnumPins,
		uintptr(unsafe.Pointer(f.obj)),
		uintptr(unsafe.Pointer(&pins)))
	if failed(hr) || pins == nil {
		return nil, hresultError("EnumPins", hr)
	}
	return &dshowPinEnum{enum: pins}, nil
}

func (f *dshowFilter) Release() {
	f.obj.release()
	f.obj = nil
}

type dshowPropertyControl struct {
	obj *comObject
}

func (c *dshowPropertyControl) vtbl() *iAMPropertyVtbl {
	return (*iAMPropertyVtbl)(c.obj.vtbl)
}

func (c *dshowPropertyControl) GetRange(property int32) (Range, error) {
	var r Range
	hr, _, _ := syscall.SyscallN(c.vtbl().GetRange,
		uintptr(unsafe.Pointer(c.obj)),
		uintptr(property),
		uintptr(unsafe.Pointer(&r.Min)),
		uintptr(unsafe.Pointer(&r.Max)),
		uintptr(unsafe.Pointer(&r.Step)),
		uintptr(unsafe.Pointer(&r.Default)),
		uintptr(unsafe.Pointer(&r.Flags)))
	if failed(hr) {
		return Range{}, hresultError("GetRange", hr)
	}
	return r, nil
}

func (c *dshowPropertyControl) Get(property int32) (int32, int32, error) {
	var value, flags int32
	hr, _, _ := syscall.SyscallN(c.vtbl().Get,
		uintptr(unsafe.Pointer(c.obj)),
		uintptr(property),
		uintptr(unsafe.Pointer(&value)),
		uintptr(unsafe.Pointer(&flags)))
	if failed(hr) {
		return 0, 0, hresultError("Get", hr)
	}
	return value, flags, nil
}

func (c *dshowPropertyControl) Set(property int32, value int32, flags int32) error {
	hr, _, _ := syscall.SyscallN(c.vtbl().Set,
		uintptr(unsafe.Pointer(c.obj)),
		uintptr(property),
		uintptr(value),
		uintptr(flags))
	if failed(hr) {
		return hresultError("Set", hr)
	}
	return nil
}

func (c *dshowPropertyControl) Release() {
	c.obj.release()
	c.obj = nil
}

type dshowPinEnum struct {
	enum *comObject
}

func (e *dshowPinEnum) Next() (Pin, bool) {
	pin, ok := nextItem(e.enum)
	if !ok {
		return nil, false
	}
	return &dshowPin{obj: pin}, true
}

func (e *dshowPinEnum) Release() {
	e.enum.release()
	e.enum = nil
}

type dshowPin struct {
	obj *comObject
}

func (p *dshowPin) StreamConfig() (StreamConfig, error) {
	obj, err := p.obj.queryInterface(&iidIAMStreamConfig)
	if err != nil {
		return nil, errors.Wrap(err, "IAMStreamConfig")
	}
	return &dshowStreamConfig{obj: obj}, nil
}

func (p *dshowPin) Release() {
	p.obj.release()
	p.obj = nil
}

type dshowStreamConfig struct {
	obj      *comObject
	capsSize int32
}

func (s *dshowStreamConfig) vtbl() *iAMStreamConfigVtbl {
	return (*iAMStreamConfigVtbl)(s.obj.vtbl)
}

func (s *dshowStreamConfig) NumCaps() (int, error) {
	var count, size int32
	hr, _, _ := syscall.SyscallN(s.vtbl().GetNumberOfCapabilities,
		uintptr(unsafe.Pointer(s.obj)),
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&size)))
	if failed(hr) {
		return 0, hresultError("GetNumberOfCapabilities", hr)
	}
	s.capsSize = size
	return int(count), nil
}

// Cap は能力 index のメディアタイプを読み、VIDEOINFOHEADER なら解像度を取り出す
func (s *dshowStreamConfig) Cap(index int) (StreamCap, error) {
	// VIDEO_STREAM_CONFIG_CAPS は 128 バイト
	size := s.capsSize
	if size < 128 {
		size = 128
	}
	caps := make([]byte, size)

	var mt *amMediaType
	hr, _, _ := syscall.SyscallN(s.vtbl().GetStreamCaps,
		uintptr(unsafe.Pointer(s.obj)),
		uintptr(index),
		uintptr(unsafe.Pointer(&mt)),
		uintptr(unsafe.Pointer(&caps[0])))
	if failed(hr) || mt == nil {
		return StreamCap{}, hresultError("GetStreamCaps", hr)
	}
	defer freeMediaType(mt)

	result := StreamCap{Format: FormatOther, Subtype: mediaSubtype(mt.subtype)}
	if mt.formattype == formatVideoInfo &&
		mt.cbFormat >= uint32(unsafe.Sizeof(videoInfoHeader{})) && mt.pbFormat != 0 {
		vih := (*videoInfoHeader)(unsafe.Pointer(mt.pbFormat))
		result.Format = FormatVideoInfo
		result.Width = vih.bmiHeader.biWidth
		result.Height = vih.bmiHeader.biHeight
	}
	return result, nil
}

func (s *dshowStreamConfig) Release() {
	s.obj.release()
	s.obj = nil
}

func mediaSubtype(guid windows.GUID) MediaSubtype {
	switch guid {
	case mediaSubtypeYUY2:
		return SubtypeYUY2
	case mediaSubtypeMJPG:
		return SubtypeMJPG
	case mediaSubtypeRGB24:
		return SubtypeRGB24
	default:
		return SubtypeUnknown
	}
}
