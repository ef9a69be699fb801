package camera

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// resolveFilter は列挙順にデバイスを走査し、最初に一致したデバイスのハンドルを返す
//
// 位置は -1 から始まり候補ごとに加算するため、インデックス 0 は最初のデバイスを指す。
// 返したハンドルの解放は呼び出し側が行う。
func (c *Controller) resolveFilter(log *logrus.Entry, id Identifier) (Filter, error) {
	devices, err := c.platform.Devices()
	if err != nil {
		log.WithError(err).Error("デバイス列挙子の作成に失敗")
		return nil, errors.Wrapf(ErrDeviceNotFound, "デバイス %s", id)
	}
	defer devices.Release()

	position := -1
	for {
		candidate, ok := devices.Next()
		if !ok {
			break
		}
		position++

		name, err := candidate.FriendlyName()
		if err != nil {
			log.WithError(err).WithField("position", position).Debug("表示名を読めないためスキップします")
			candidate.Release()
			continue
		}

		if !id.matches(position, name) {
			candidate.Release()
			continue
		}

		log.WithFields(logrus.Fields{"position": position, "name": name}).Debug("一致するデバイスを検出しました")
		filter, err := candidate.Bind()
		candidate.Release()
		if err != nil {
			log.WithError(err).WithField("position", position).Warn("デバイスへのバインドに失敗")
			continue
		}
		return filter, nil
	}

	log.Warn("デバイスが見つかりません")
	return nil, errors.Wrapf(ErrDeviceNotFound, "デバイス %s", id)
}

// resolveInterfaces はデバイスを解決し、画質系と制御系の両インターフェースを取得する
//
// どちらか一方でも取得できなければ、取得済みのものを解放して失敗する。
// デバイスハンドル自体はこの関数内で解放する。
func (c *Controller) resolveInterfaces(log *logrus.Entry, id Identifier) (PropertyControl, PropertyControl, error) {
	filter, err := c.resolveFilter(log, id)
	if err != nil {
		return nil, nil, err
	}
	defer filter.Release()

	cameraControl, err := filter.CameraControl()
	if err != nil {
		log.WithError(err).Error("CameraControl インターフェースを取得できません")
		return nil, nil, errors.Wrapf(ErrInterfaceNotSupported, "デバイス %s: camera", id)
	}

	procAmp, err := filter.VideoProcAmp()
	if err != nil {
		cameraControl.Release()
		log.WithError(err).Error("VideoProcAmp インターフェースを取得できません")
		return nil, nil, errors.Wrapf(ErrInterfaceNotSupported, "デバイス %s: video", id)
	}

	return procAmp, cameraControl, nil
}
