// btlink - scan for Bluetooth devices and keep one serial-style
// session open to the one you pick.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"btlink/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "btlink: %v\n", err)
		os.Exit(1)
	}
}
