package main

import "github.com/nitrotech24/disputa-portal-conferencia/cmd"

func main() {
	cmd.Execute()
}
