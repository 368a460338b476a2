// Command tierbot runs the VIP tier bot.
package main

import (
	"os"

	"github.com/vip-ladder/tierbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
