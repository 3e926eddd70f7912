package main

import (
	"os"

	blackboardcmder "github.com/papercomputeco/blackboard/cmd/blackboard"
)

func main() {
	cmd := blackboardcmder.NewBlackboardCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
