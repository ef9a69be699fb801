// Package server は、デバイス制御のHTTP APIを提供します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// カメラ制御操作とプリセット保存のエンドポイントを担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - デバイス一覧、設定の取得と書き込み、解像度一覧のAPI
//   - 書き込み履歴とプリセットのAPI
//   - デバイスの抜き差しに応じたハンドルキャッシュの破棄
//
// 仕様:
//   - gin を使用
//   - エラーは {error, message, timestamp} 形式で返す
//   - グレースフルシャットダウンと systemd の READY/STOPPING 通知に対応
package server
