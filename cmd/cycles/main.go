// Command cycles is the cycle accounting CLI.
package main

import "github.com/mesh-intelligence/cycles/internal/cli"

func main() {
	cli.Execute()
}
