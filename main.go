package main

import "github.com/recipexec/engine/cmd"

func main() {
	cmd.Execute()
}
