package main

import "github.com/alertdesk/alarm-console/cmd/alarm-console/cmd"

func main() {
	cmd.Execute()
}
