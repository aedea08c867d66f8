package main

import "github.com/KaramelBytes/creditloom-cli/cmd"

func main() {
	cmd.Execute()
}
