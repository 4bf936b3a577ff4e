/*
Copyright © 2025 tieubaoca
*/
package main

import (
	"github.com/joho/godotenv"
	"github.com/tieubaoca/ragchat-be/cmd"
)

func main() {
	cmd.Execute()
}

func init() {
	// A missing .env is fine when the keys come from the environment.
	godotenv.Load()
}
