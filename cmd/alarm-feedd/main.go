package main

import "github.com/alertdesk/alarm-console/cmd/alarm-feedd/cmd"

func main() {
	cmd.Execute()
}
