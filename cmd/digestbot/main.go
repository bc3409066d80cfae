package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/lisanmuaddib/tweet-digest/internal/cli"
)

func main() {
	if err := cli.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
