package main

import (
	"context"

	"instconnect/cmd/connector-cli/commands"
	"instconnect/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext(context.Background()))
}
