// mimic mirrors an Android device's screen to the desktop over Wi-Fi.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mimic/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if status := cmd.Report(os.Stderr, cmd.Execute(ctx, os.Args[1:])); status != 0 {
		cancel()
		os.Exit(status)
	}
}
