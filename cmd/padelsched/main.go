package main

import (
	"github.com/joho/godotenv"

	"github.com/example/padel-scheduler/cmd"
)

func main() {
	// optional .env for local runs
	_ = godotenv.Load()
	cmd.Execute()
}
