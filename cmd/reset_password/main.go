package main

import (
	"flag"
	"fmt"
	"log"

	"certcheck/pkg/store"
	"certcheck/process/tooling"
)

func main() {
	username := flag.String("username", "", "username to reset")
	password := flag.String("password", "", "new plaintext password (min 6 chars)")
	flag.Parse()
	if *username == "" || *password == "" {
		log.Fatal("--username and --password are required")
	}
	if len(*password) < 6 {
		log.Fatal("password too short (min 6)")
	}
	gdb := tooling.MustDB(tooling.Logger())
	if err := store.SetPassword(gdb, *username, *password); err != nil {
		log.Fatalf("update failed: %v", err)
	}
	fmt.Printf("Password reset for user %s\n", *username)
}
