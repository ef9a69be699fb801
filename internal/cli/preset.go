package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"camctl/internal/camera"
)

func newPresetCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "プロパティのプリセットを管理",
	}
	cmd.AddCommand(
		newPresetSaveCommand(app),
		newPresetApplyCommand(app),
		newPresetListCommand(app),
		newPresetDeleteCommand(app),
	)
	return cmd
}

func newPresetSaveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "save <name> <device> [Property=Value...]",
		Short: "プリセットを保存 (値を省略するとデバイスの現在値)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.requireStore()
			if err != nil {
				return err
			}
			name, device := args[0], args[1]

			var updates []camera.SettingUpdate
			if len(args) > 2 {
				parsed, missing, err := parseSetArgs(args[2:])
				if err != nil {
					return err
				}
				if len(missing) > 0 {
					current, err := app.controller.GetSettings(cmd.Context(), camera.ParseIdentifier(device))
					if err != nil {
						return err
					}
					fillCurrentValues(parsed, missing, current)
				}
				updates = parsed
			} else {
				current, err := app.controller.GetSettings(cmd.Context(), camera.ParseIdentifier(device))
				if err != nil {
					return err
				}
				updates = camera.UpdatesFromSettings(current)
			}

			if err := st.SavePreset(name, device, updates); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "プリセット %q を保存しました (%d 件)\n", name, len(updates))
			return nil
		},
	}
}

func newPresetApplyCommand(app *App) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "apply <name>",
		Short: "プリセットをデバイスに書き込む",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.requireStore()
			if err != nil {
				return err
			}
			preset, err := st.Preset(args[0])
			if err != nil {
				return err
			}
			if device == "" {
				device = preset.Device
			}
			id := camera.ParseIdentifier(device)
			if err := app.controller.SetSettings(cmd.Context(), id, preset.Updates); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "プリセット %q を適用しました: %s\n", preset.Name, id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "プリセットに記録されたデバイスの代わりに使うデバイス")
	return cmd
}

func newPresetListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "保存済みのプリセットを一覧表示",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.requireStore()
			if err != nil {
				return err
			}
			presets, err := st.Presets()
			if err != nil {
				return err
			}
			header := []string{"NAME", "DEVICE", "SETTINGS", "UPDATED"}
			return app.render(cmd.OutOrStdout(), presets, header, presetRows(presets))
		},
	}
}

func newPresetDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "プリセットを削除",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.requireStore()
			if err != nil {
				return err
			}
			if err := st.DeletePreset(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "プリセット %q を削除しました\n", args[0])
			return nil
		},
	}
}
