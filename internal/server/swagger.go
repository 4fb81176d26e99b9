package server

//go:generate swag init -g internal/server/server.go -o internal/server/docs

// @title Coinpilot API
// @version 0.1
// @description Scraping, screenshot, language model and launch job endpoints.
// @contact.name Coinpilot Maintainers
// @contact.url https://github.com/raysh454/coinpilot
// @BasePath /
