// Package main implements a small operator tool that generates the admin
// key material for the refund endpoint.
//
// The refund action is guarded by an X-Admin-Key header checked against a
// bcrypt hash from configuration. This tool produces a fresh random key and
// the matching hash for the ADMIN_KEY_HASH environment variable, or hashes
// a key the operator supplies.
//
// Usage:
//
//	go run ./cmd/ops/admin-key              # generate key + hash
//	go run ./cmd/ops/admin-key --key=s3cret # hash an existing key
//	go run ./cmd/ops/admin-key --cost=12    # override bcrypt cost
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out *os.File) error {
	fs := flag.NewFlagSet("admin-key", flag.ContinueOnError)
	key := fs.String("key", "", "admin key to hash; generated randomly when empty")
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		return fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	generated := false
	if *key == "" {
		*key = uuid.NewString()
		generated = true
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*key), *cost)
	if err != nil {
		return fmt.Errorf("hashing key: %w", err)
	}

	if generated {
		fmt.Fprintf(out, "Admin key (store securely, shown once):\n%s\n\n", *key)
	}
	fmt.Fprintf(out, "ADMIN_KEY_HASH=%s\n", hash)
	return nil
}
