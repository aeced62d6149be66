package main

import (
	"github.com/luma/maestro/cmd"
)

func main() {
	cmd.Execute()
}
