package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/config"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/security"
)

// Prints a bearer token signed with the configured secret for calling the API locally.
func main() {
	userSub := flag.String("user", "", "user sub placed in the token")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *userSub == "" {
		log.Fatal("-user is required")
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.App.Env == "production" {
		log.Fatal("refusing to issue tokens in production")
	}

	token, err := security.IssueToken(cfg.JWT.Secret, cfg.JWT.Issuer, *userSub, *ttl, time.Now())
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	fmt.Println(token)
}
