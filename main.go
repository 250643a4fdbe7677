// The main package for the sitegrab executable.
package main

import (
	"github.com/sitegrab/sitegrab/cmd"
)

func main() {
	cmd.Execute()
}
