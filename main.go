package main

import "github.com/Curodenz/animeko/cmd"

func main() {
	cmd.Execute()
}
