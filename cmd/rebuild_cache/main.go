package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/vantage-backend/internal/app"
)

func main() {
	var only string
	var repair bool
	var timeout time.Duration
	flag.StringVar(&only, "only", "", "rebuild a single projection: subjects or aspects")
	flag.BoolVar(&repair, "repair-ranges", true, "clamp out-of-domain NUMERIC ranges before rebuilding")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	only = strings.ToLower(strings.TrimSpace(only))
	switch only {
	case "", "subjects", "aspects":
	default:
		fmt.Printf("unknown -only value %q\n", only)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close(context.Background())

	svc := application.Services
	if repair && only != "subjects" {
		n, err := svc.Aspects.RepairRanges(ctx)
		if err != nil {
			fmt.Printf("repair ranges: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("repaired %d aspects\n", n)
	}
	if only != "subjects" {
		n, err := svc.Aspects.RebuildCache(ctx)
		if err != nil {
			fmt.Printf("rebuild aspects: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("cached %d published aspects\n", n)
	}
	if only != "aspects" {
		n, err := svc.Hierarchy.RebuildCache(ctx)
		if err != nil {
			fmt.Printf("rebuild subjects: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("cached %d published subjects\n", n)
	}
}
