//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/sh"
)

// Default target when running mage without arguments.
var Default = Build

// Build builds the server binary.
func Build() error {
	fmt.Println("Building server...")
	return sh.Run("go", "build", "-o", "bin/server", "./cmd/server")
}

// Test runs all tests.
func Test() error {
	fmt.Println("Running tests...")
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet and gofmt checks.
func Lint() error {
	fmt.Println("Running vet...")
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}
	if out != "" {
		return fmt.Errorf("files need formatting:\n%s", out)
	}
	return nil
}

// Run starts the server.
func Run() error {
	return sh.RunV("go", "run", "./cmd/server")
}

// Clean removes build artifacts.
func Clean() error {
	return sh.Rm("bin")
}
