package main

import "github.com/fotoskupka/estimabot/cmd"

func main() {
	cmd.Execute()
}
