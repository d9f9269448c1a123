package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kas-flash/stream-server-go/internal/kaspa"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/kas-to-sompi.go <amount-in-kas>\n")
		os.Exit(1)
	}

	amount, err := strconv.ParseFloat(os.Args[1], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(kaspa.KASToSompi(amount))
}
