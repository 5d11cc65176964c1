package main

import (
	"github.com/joho/godotenv"

	"kpihub/internal/app/server"
)

func main() {
	_ = godotenv.Load()
	server.Run()
}
