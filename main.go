package main

import "ensemble-trader/internal/cli"

func main() {
	cli.Execute()
}
