package main

import "github.com/KaramelBytes/satark-cli/cmd"

func main() {
	cmd.Execute()
}
