package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/razieloren/hype-train/internal/secrets"
)

const passwordEnv = "HYPE_MASTER_PASSWORD"

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	op := flag.String("op", "encrypt", "operation: encrypt or decrypt")
	secret := flag.String("secret", "", "plaintext to encrypt, or token to decrypt")
	salt := flag.String("salt", "", "salt of the token (decrypt only)")
	password := flag.String("password", "", "master password (defaults to "+passwordEnv+")")
	flag.Parse()

	_ = godotenv.Load()
	if *password == "" {
		*password = os.Getenv(passwordEnv)
	}
	if *password == "" {
		fail("a master password is required (-password or %s)", passwordEnv)
	}
	if *secret == "" {
		fail("-secret is required")
	}

	switch *op {
	case "encrypt":
		token, saltB64, err := secrets.Encrypt(*secret, *password)
		if err != nil {
			fail("encrypt: %v", err)
		}
		fmt.Printf("token: %s\nsalt: %s\n", token, saltB64)
	case "decrypt":
		if *salt == "" {
			fail("-salt is required to decrypt")
		}
		plaintext, err := secrets.Decrypt(*secret, *salt, *password)
		if err != nil {
			fail("decrypt: %v", err)
		}
		fmt.Println(plaintext)
	default:
		fail("unknown operation %q", *op)
	}
}
