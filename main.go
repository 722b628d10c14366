package main

import "github.com/King-Chau/mozi/cmd"

func main() {
	cmd.Execute()
}
