package main

import "github.com/mgmu/hortus/cmd"

func main() {
	cmd.Execute()
}
