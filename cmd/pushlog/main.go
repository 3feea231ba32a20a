package main

import "github.com/jmcleod/pushlog/cmd/pushlog/cmd"

func main() {
	cmd.Execute()
}
