package main

import (
	"os"

	"camctl/internal/cli"
)

func main() {
	// エラーは cobra が標準エラーに出力する
	if err := cli.Execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
