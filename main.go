package main

import (
	"github.com/luma/hoxconform/cmd"
)

func main() {
	cmd.Execute()
}
