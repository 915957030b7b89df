package main

import "github.com/aweris/sitestore/cmd/sitestore/cmd"

func main() {
	cmd.Execute()
}
