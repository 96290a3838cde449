package main

import (
	"os"

	"github.com/MrEthical07/pveauth/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
