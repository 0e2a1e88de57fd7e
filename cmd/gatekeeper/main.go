package main

import "github.com/vitalvas/gatekeeper/internal/cli"

func main() {
	cli.Execute()
}
