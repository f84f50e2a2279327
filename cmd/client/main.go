package main

import "assistsync/cmd/client/cmd"

func main() {
	cmd.Execute()
}
