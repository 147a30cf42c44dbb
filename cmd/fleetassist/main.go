package main

import (
	_ "time/tzdata"

	"fleetassist-backend/cmd/fleetassist/commands"
	"fleetassist-backend/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
