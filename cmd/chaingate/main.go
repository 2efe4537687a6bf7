package main

import "github.com/ppiankov/chaingate/internal/cli"

func main() {
	cli.Execute()
}
