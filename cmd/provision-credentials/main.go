package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/database"
	"github.com/provexam/provex-backend/internal/logger"
	"github.com/provexam/provex-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	credentialRepo := repository.NewCredentialRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Provision Exam Credentials ===")

	// Exam ID
	fmt.Print("Enter Exam ID: ")
	examIDStr, _ := reader.ReadString('\n')
	examID, err := uuid.Parse(strings.TrimSpace(examIDStr))
	if err != nil {
		fmt.Println("Error: Exam ID must be a valid UUID")
		return
	}

	// Mode
	fmt.Print("Mode [shared/per-student] (default shared): ")
	mode, _ := reader.ReadString('\n')
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "shared"
	}

	switch mode {
	case "shared":
		fmt.Print("Enter Shared Secret: ")
		byteSecret, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Println("\nError reading secret")
			return
		}
		secret := strings.TrimSpace(string(byteSecret))
		fmt.Println()
		if secret == "" {
			fmt.Println("Error: Secret is required")
			return
		}

		if err := credentialRepo.UpsertShared(ctx, examID, secret); err != nil {
			log.Fatal().Err(err).Msg("Failed to provision shared credential")
		}
		fmt.Printf("\nSuccess! Shared credential provisioned for exam %s\n", examID)

	case "per-student":
		// One student per line: email<space>secret. Blank line ends input.
		fmt.Println("Enter one student per line as: email secret (blank line to finish)")
		provisioned := 0
		for {
			line, _ := reader.ReadString('\n')
			line = strings.TrimSpace(line)
			if line == "" {
				break
			}
			fields := strings.Fields(line)
			if len(fields) != 2 {
				fmt.Printf("Skipping malformed line: %q\n", line)
				continue
			}
			email, secret := strings.ToLower(fields[0]), fields[1]

			hash, err := bcrypt.GenerateFromPassword([]byte(secret), cfg.BcryptCost)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to hash secret")
			}
			if err := credentialRepo.UpsertStudent(ctx, examID, email, string(hash)); err != nil {
				log.Fatal().Err(err).Str("student_email", email).Msg("Failed to provision student credential")
			}
			provisioned++
		}
		fmt.Printf("\nSuccess! %d student credential(s) provisioned for exam %s\n", provisioned, examID)

	default:
		fmt.Println("Error: Mode must be 'shared' or 'per-student'")
	}
}
