package main

import (
	"github.com/turtacn/fincore-risk/cmd/cli"
)

// main is the entry point for the fincore-risk-admin command-line tool.
// main 是 fincore-risk-admin 命令行工具的入口点。
func main() {
	cli.Execute()
}
