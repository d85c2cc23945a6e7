//go:build tools

package main

// Keeps the code-generation tools in go.mod.
import (
	_ "github.com/dmarkham/enumer"
)
