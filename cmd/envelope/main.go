package main

import "github.com/AndrewDonelson/envelope/cmd/envelope/cmd"

func main() {
	cmd.Execute()
}
