package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"camctl/internal/camera"
)

func newDevicesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ls"},
		Short:   "ビデオ入力デバイスを一覧表示",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := app.controller.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			return app.render(cmd.OutOrStdout(), devices, []string{"INDEX", "NAME"}, deviceRows(devices))
		},
	}
}

func newOpenCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "open <device>",
		Short: "デバイスを開く (キャッシュ有効時は close まで保持)",
		Long:  "デバイスはフレンドリ名、または #0 のような列挙順のインデックスで指定します。",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := camera.ParseIdentifier(args[0])
			if err := app.controller.Open(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "デバイスを開きました: %s\n", id)
			return nil
		},
	}
}

func newCloseCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close <device>",
		Short: "キャッシュ中のデバイスを閉じる",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := camera.ParseIdentifier(args[0])
			if err := app.controller.Close(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "デバイスを閉じました: %s\n", id)
			return nil
		},
	}
}

func newGetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <device>",
		Short: "プロパティの現在値と範囲を表示",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.controller.GetSettings(cmd.Context(), camera.ParseIdentifier(args[0]))
			if err != nil {
				return err
			}
			header := []string{"TYPE", "PROPERTY", "VALUE", "MIN", "MAX", "STEP", "DEFAULT", "AUTO"}
			return app.render(cmd.OutOrStdout(), settings, header, settingRows(settings))
		},
	}
}

func newSetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <device> <Property=Value>...",
		Short: "プロパティを書き込む",
		Long: `プロパティを指定した順に書き込みます。

  Brightness=128      手動で 128 を設定
  Exposure=auto       自動に切り替え (値は現在値のまま)
  Focus=30:auto       値 30 で自動に切り替え`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := camera.ParseIdentifier(args[0])
			updates, missing, err := parseSetArgs(args[1:])
			if err != nil {
				return err
			}

			// 値を省略した自動指定は現在値で補う
			if len(missing) > 0 {
				current, err := app.controller.GetSettings(cmd.Context(), id)
				if err != nil {
					return err
				}
				fillCurrentValues(updates, missing, current)
			}

			if err := app.controller.SetSettings(cmd.Context(), id, updates); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d 件のプロパティを書き込みました: %s\n", len(updates), id)
			return nil
		},
	}
}

func newResolutionsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolutions <device>",
		Short: "対応する解像度を一覧表示",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolutions, err := app.controller.ListResolutions(cmd.Context(), camera.ParseIdentifier(args[0]))
			if err != nil {
				return err
			}
			return app.render(cmd.OutOrStdout(), resolutions, []string{"WIDTH", "HEIGHT", "TYPE"}, resolutionRows(resolutions))
		},
	}
}

func newHistoryCommand(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [device]",
		Short: "プロパティの書き込み履歴を表示",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.requireStore()
			if err != nil {
				return err
			}
			device := ""
			if len(args) == 1 {
				device = camera.ParseIdentifier(args[0]).String()
			}
			changes, err := st.History(device, limit)
			if err != nil {
				return err
			}
			header := []string{"TIME", "DEVICE", "PROPERTY", "VALUE", "AUTO", "APPLIED", "ERROR"}
			return app.render(cmd.OutOrStdout(), changes, header, historyRows(changes))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "表示する件数 (0 で全件)")
	return cmd
}

// parseSetArgs は Property=Value 形式の引数を解析する
//
// 値を省略した自動指定 (Exposure=auto) の位置を missing に返す。
func parseSetArgs(args []string) ([]camera.SettingUpdate, []int, error) {
	updates := make([]camera.SettingUpdate, 0, len(args))
	var missing []int
	for i, arg := range args {
		u, hasValue, err := parseSetArg(arg)
		if err != nil {
			return nil, nil, err
		}
		if !hasValue {
			missing = append(missing, i)
		}
		updates = append(updates, u)
	}
	return updates, missing, nil
}

func parseSetArg(arg string) (camera.SettingUpdate, bool, error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok || name == "" || value == "" {
		return camera.SettingUpdate{}, false, fmt.Errorf("Property=Value の形式で指定してください: %q", arg)
	}
	if _, _, known := camera.LookupProperty(name); !known {
		return camera.SettingUpdate{}, false, errors.Wrapf(camera.ErrInvalidProperty, "%q", name)
	}

	u := camera.SettingUpdate{Property: name}
	if strings.EqualFold(value, "auto") {
		u.Auto = true
		return u, false, nil
	}
	if v, ok := strings.CutSuffix(value, ":auto"); ok {
		u.Auto = true
		value = v
	}

	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return camera.SettingUpdate{}, false, fmt.Errorf("値が整数ではありません: %q", arg)
	}
	u.Value = int32(n)
	return u, true, nil
}

// fillCurrentValues は missing の位置の値を現在値で埋める
func fillCurrentValues(updates []camera.SettingUpdate, missing []int, current []camera.Setting) {
	values := make(map[string]int32, len(current))
	for _, s := range current {
		values[s.Property] = s.Value
	}
	for _, i := range missing {
		if v, ok := values[updates[i].Property]; ok {
			updates[i].Value = v
		}
	}
}
