// Package main is the entry point for the DocDB Gateway.
// @title DocDB Gateway API
// @version 1.0
// @description Read-only HTTP gateway that streams MongoDB collection queries as JSON.

// @contact.name API Support
// @contact.url https://github.com/unifiedui/docdb-gateway

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @schemes http https
package main

func main() {
	Execute()
}
