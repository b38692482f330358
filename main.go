package main

import "github.com/ideaspaper/reqkit/cmd"

func main() {
	cmd.Execute()
}
