package main

import "github.com/nhirsama/Goster-Bridge/cli"

func main() {
	cli.Run()
}
