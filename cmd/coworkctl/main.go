package main

import "github.com/coworkhub/coworkhub/cmd/coworkctl/cli"

func main() {
	cli.Execute()
}
