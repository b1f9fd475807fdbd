// ./main.go
package main

import (
	"github.com/xkilldash9x/macbridge/cmd"
)

// main is the entry point for the macbridge process.
func main() {
	cmd.Execute()
}
