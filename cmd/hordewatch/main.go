package main

import "horde-monitor/internal/cli"

func main() {
	cli.Execute()
}
