package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "scan":
		scanCmd := flag.NewFlagSet("scan", flag.ExitOnError)
		interval := scanCmd.Int("i", 0, "seconds between samples (default from env or 30)")
		workers := scanCmd.Int("workers", 0, "concurrent recognition workers")
		outDir := scanCmd.String("out", "", "directory for result files (default: next to each input)")
		scanCmd.Parse(os.Args[2:])
		if scanCmd.NArg() < 1 {
			fmt.Println("usage: song-scanner scan [-i seconds] [-workers n] [-out dir] <file...>")
			os.Exit(1)
		}
		scanFiles(scanCmd.Args(), *interval, *workers, *outDir)

	case "live":
		liveCmd := flag.NewFlagSet("live", flag.ExitOnError)
		interval := liveCmd.Int("i", 0, "seconds between samples (default from env or 30)")
		liveCmd.Parse(os.Args[2:])
		live(*interval)

	case "history":
		historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
		limit := historyCmd.Int("n", 50, "number of matches to show")
		historyCmd.Parse(os.Args[2:])
		history(*limit)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: song-scanner <command>")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  scan [-i 30] [-workers n] [-out dir] <file...>   identify the songs inside recorded audio")
	fmt.Println("  live [-i 30]                                     identify songs from raw PCM on stdin")
	fmt.Println("  history [-n 50]                                  show recently identified songs")
}
