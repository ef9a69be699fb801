// Package camera はWebカメラのプロパティ制御を担う
//
// # 責務
// - ビデオ入力デバイスの列挙と識別子（名前またはインデックス）による解決
// - 画質系プロパティ（明るさ・コントラスト等）とカメラ制御系プロパティ（パン・ズーム・露出等）の取得・設定
// - 出力ピンのストリーム能力からの解像度・ピクセルフォーマット一覧の取得
// - デバイスハンドルのキャッシュ管理
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラの現在値と設定可能範囲を一覧したい
// - 複数のプロパティをまとめて書き込みたい
// - デバイスが対応する解像度を調べたい
//
// # 仕様
//   - Controller: 各操作の入口。呼び出しごとにランタイム環境を取得し、終了時に必ず解放する
//   - Platform: OSのマルチメディアAPIの抽象。Windows は DirectShow、Linux は V4L2、テスト用に Mock を持つ
//   - プロパティ単位の失敗はログに残してスキップする（ベストエフォート）
//   - 未知のプロパティ名の書き込みはバッチ全体を中断する。適用済みの値は戻さない
//   - プラットフォームのエラーコードはログにのみ残し、呼び出し元にはセンチネルエラーを返す
//
// # 前提要件
//   - Windows: DirectShow (quartz.dll / devenum.dll) が利用可能であること
//   - Linux: videoグループへの参加などデバイスへのアクセス権限
//     sudo usermod -a -G video $USER
package camera
