package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"certcheck/models"
	"certcheck/pkg/store"
	"certcheck/process/tooling"
)

func main() {
	role := flag.String("role", models.RoleUser, "role for the new account (user or administrator)")
	flag.Parse()
	if flag.NArg() < 2 {
		fmt.Println("usage: go run ./cmd/create_user [-role administrator] <username> <password>")
		os.Exit(2)
	}
	username, password := flag.Arg(0), flag.Arg(1)
	if len(password) < 6 {
		log.Fatal("password too short (min 6)")
	}
	if *role != models.RoleUser && *role != models.RoleAdministrator {
		log.Fatalf("unknown role %q", *role)
	}

	logger := tooling.Logger()
	gdb := tooling.MustDB(logger)
	if err := store.EnsureRoles(gdb); err != nil {
		log.Fatalf("ensure roles: %v", err)
	}
	user, err := store.CreateUser(gdb, username, password, *role)
	if errors.Is(err, store.ErrUserExists) {
		fmt.Printf("user %s already exists\n", username)
		return
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%d role=%s\n", username, user.ID, *role)
}
