package main

import (
	"log"

	"github.com/temanhiv-blip/teman-hiv-bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
