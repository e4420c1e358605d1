package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd, s := newRootCmd()
	err := cmd.Execute()
	if closeErr := s.close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
