package main

import (
	"context"
	"time"

	"analogkb-go/app"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	ctx := context.Background()
	a := app.New(ctx, board())
	a.Run(ctx)
}
