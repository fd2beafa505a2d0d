package main

import "github.com/cloudcost-tools/cost-sentinel/internal/cli"

func main() {
	cli.Execute()
}
