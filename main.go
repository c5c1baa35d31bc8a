package main

import "tgpoll/cmd"

func main() {
	cmd.Execute()
}
