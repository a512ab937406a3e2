package main

import (
	"ledgerkeeper/cmd/client/cmd"
)

func main() {
	cmd.Execute()
}
