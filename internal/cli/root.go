// Package cli は camctl コマンドを実装する
package cli

import (
	"github.com/spf13/cobra"
)

// Execute は args でコマンドを実行する
func Execute(args []string) error {
	app := &App{}
	defer app.Close()

	root := newRootCommand(app)
	root.SetArgs(args)
	return root.Execute()
}

// newRootCommand はコマンドツリーを作成する
//
// app が初期化済みなら設定を読み直さない。shell は1行ごとにこのツリーを作り直す。
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:          "camctl",
		Short:        "Webカメラのプロパティ制御",
		Long:         "Webカメラの画質調整とカメラ制御のプロパティを取得・設定します。",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.initialized() {
				return nil
			}
			quiet := !cmd.Flags().Changed("log-level") && cmd.Name() != "serve"
			return app.init(quiet)
		},
	}

	// 既定値は現在値。shell で作り直したツリーが起動時の指定を引き継ぐ
	root.PersistentFlags().StringVarP(&app.configPath, "config", "c", app.configPath, "設定ファイルのパス (デフォルト: $CAMCTL_CONFIG または camctl.yaml)")
	root.PersistentFlags().BoolVar(&app.mock, "mock", app.mock, "シミュレートされたデバイスを使う")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", app.logLevel, "ログレベル (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&app.output, "output", "o", app.output, "出力形式 (table, json)。省略時は端末なら table")

	root.AddCommand(
		newDevicesCommand(app),
		newOpenCommand(app),
		newCloseCommand(app),
		newGetCommand(app),
		newSetCommand(app),
		newResolutionsCommand(app),
		newHistoryCommand(app),
		newPresetCommand(app),
		newServeCommand(app),
		newShellCommand(app),
	)
	return root
}
