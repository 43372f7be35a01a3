package main

import (
	"github.com/gitreporter/git-reporter/cmd"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cmd.Run()
}
