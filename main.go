package main

import "github.com/relaydesk/relaydesk/cmd"

func main() {
	cmd.Execute()
}
