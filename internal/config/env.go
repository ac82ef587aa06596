package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file into the environment. Missing files are
// ignored; variables already present are left untouched.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
