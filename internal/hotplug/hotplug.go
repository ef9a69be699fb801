// Package hotplug はデバイスノードの追加と削除を監視する
package hotplug

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// devicePrefix は監視対象とするノード名の接頭辞
const devicePrefix = "video"

// Watch は dir 配下の video* ノードの作成、削除、名前変更を onChange に通知する
//
// 監視は ctx がキャンセルされるまでバックグラウンドで続く。
// 監視を開始できなかった場合だけエラーを返す。
func Watch(ctx context.Context, dir string, log *logrus.Entry, onChange func(name string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "ファイル監視の作成に失敗")
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "ディレクトリを監視できません: %s", dir)
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("dir", dir)
	log.Info("デバイスの監視を開始しました")

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				log.Debug("デバイスの監視を終了します")
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isDeviceEvent(ev) {
					continue
				}
				log.WithFields(logrus.Fields{"name": ev.Name, "op": ev.Op.String()}).Info("デバイスの変化を検出しました")
				onChange(ev.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("ファイル監視でエラーが発生しました")
			}
		}
	}()

	return nil
}

func isDeviceEvent(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), devicePrefix)
}
