// Package main は systemd から起動する camctl サーバーコマンドの実装です
//
// camctl serve と同じで、--host、--port、--config を受け付ける。
package main

import (
	"os"

	"camctl/internal/cli"
)

func main() {
	args := append([]string{"serve"}, os.Args[1:]...)
	if err := cli.Execute(args); err != nil {
		os.Exit(1)
	}
}
