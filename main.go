package main

import "github.com/OjusWiZard/triton-bot/cmd"

func main() {
	cmd.Execute()
}
