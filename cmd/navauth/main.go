package main

import "github.com/jmcleod/navauth/cmd/navauth/cmd"

func main() {
	cmd.Execute()
}
