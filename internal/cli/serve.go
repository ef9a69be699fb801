package cli

import (
	"github.com/spf13/cobra"

	"camctl/internal/server"
)

func newServeCommand(app *App) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "HTTP API サーバーを起動",
		Long: `HTTP API サーバーを起動します。

環境変数:
  CAMCTL_CONFIG   設定ファイルのパス
  SERVER_HOST     サーバーのホスト
  PORT            サーバーのポート番号`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// コマンドライン引数で設定を上書き
			if host != "" {
				app.cfg.Server.Host = host
			}
			if port != 0 {
				app.cfg.Server.Port = port
			}
			if err := app.cfg.Validate(); err != nil {
				return err
			}

			var opts []server.Option
			if app.store != nil {
				opts = append(opts, server.WithStore(app.store))
			}

			app.log.WithField("addr", app.cfg.ServerAddress()).Info("サーバーを起動します")
			srv := server.New(app.cfg, app.controller, app.log, opts...)
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "サーバーのホスト (設定ファイルより優先)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "サーバーのポート番号 (設定ファイルより優先)")
	return cmd
}
