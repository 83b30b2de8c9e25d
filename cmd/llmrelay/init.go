package main

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed .env.example
var envExampleContent string

// runInit generates .env.example in the current directory.
func runInit() error {
	const filename = ".env.example"

	// The template is safe to overwrite.
	if err := os.WriteFile(filename, []byte(envExampleContent), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	fmt.Printf("Generated %s\n", filename)
	fmt.Println("Next steps:")
	fmt.Println("  1. cp .env.example .env")
	fmt.Println("  2. Edit .env and change JWT_SECRET_KEY and the admin password")
	fmt.Println("  3. Start the server: ./llmrelay")

	return nil
}
