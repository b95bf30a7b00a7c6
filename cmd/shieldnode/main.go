package main

import "github.com/shieldfold/shieldnode/cmd/shieldnode/cmd"

func main() {
	cmd.Execute()
}
