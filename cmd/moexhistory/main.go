package main

import "moex-history/internal/cli"

func main() {
	cli.Execute()
}
