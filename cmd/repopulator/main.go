package main

import (
	"os"

	"dicom-repopulator/internal/cli"
	"dicom-repopulator/internal/gui"
)

func main() {
	args := os.Args[1:]

	// No run described = GUI mode
	if opts, err := cli.ParseArgs(args); err == nil && opts.Interactive() {
		app := gui.NewApp()
		app.Run()
		return
	}

	os.Exit(cli.Main(args, os.Stdout, os.Stderr))
}
