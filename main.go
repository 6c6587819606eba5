package main

import "github.com/nextlevelbuilder/herald/cmd"

func main() {
	cmd.Execute()
}
