package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const shellPrompt = "camctl> "

func newShellCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "対話シェルを起動 (同じハンドルキャッシュを使い続ける)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runShell(cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runShell は行を読み、終了するまでコマンドを実行する
func (a *App) runShell(out, errOut io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	fmt.Fprintln(out, "exit で終了します。help でコマンド一覧を表示します。")
	for {
		input, err := line.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "入力の読み込みに失敗")
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := a.runShellLine(input, out, errOut)
		if err != nil {
			fmt.Fprintf(errOut, "エラー: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// runShellLine は1行を分割してコマンドツリーで実行する
func (a *App) runShellLine(input string, out, errOut io.Writer) (bool, error) {
	args, err := shellquote.Split(input)
	if err != nil {
		return false, errors.Wrap(err, "入力を解析できません")
	}
	if len(args) == 0 {
		return false, nil
	}

	switch args[0] {
	case "exit", "quit":
		return true, nil
	case "shell", "serve":
		return false, fmt.Errorf("シェルの中では %s を実行できません", args[0])
	}

	// --output はその行だけに効かせる
	output := a.output
	defer func() { a.output = output }()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SilenceErrors = true
	return false, root.Execute()
}

// completeCommand はトップレベルのコマンド名を補完する
func completeCommand(line string) []string {
	if strings.Contains(line, " ") {
		return nil
	}
	var matches []string
	for _, c := range newRootCommand(&App{}).Commands() {
		if strings.HasPrefix(c.Name(), line) {
			matches = append(matches, c.Name())
		}
	}
	for _, name := range []string{"exit", "quit"} {
		if strings.HasPrefix(name, line) {
			matches = append(matches, name)
		}
	}
	return matches
}

