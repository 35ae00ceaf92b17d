package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/regcheck/backend/internal/db"
	"github.com/regcheck/backend/internal/services"
)

// UserData represents the structure of users in the JSON file
type UserData struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// JSONData represents the structure of the JSON files
type JSONData struct {
	Users []UserData `json:"users"`
}

var usersFile string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Create the initial user accounts",
	RunE:  runSeedUsers,
}

func init() {
	usersCmd.Flags().StringVarP(&usersFile, "file", "f", "data/initial-users.json", "JSON file with the users to create")
	rootCmd.AddCommand(usersCmd)
}

func runSeedUsers(cmd *cobra.Command, args []string) error {
	usersData, err := os.ReadFile(usersFile)
	if err != nil {
		return fmt.Errorf("failed to read users file: %w", err)
	}

	var jsonData JSONData
	if err := json.Unmarshal(usersData, &jsonData); err != nil {
		return fmt.Errorf("failed to parse users file: %w", err)
	}

	users := services.NewUserService(services.NewGormStore(db.DB))
	created := 0
	for _, userData := range jsonData.Users {
		role, err := services.ParseRole(userData.Role)
		if err != nil {
			log.Printf("Unknown role %s for user %s, defaulting to viewer", userData.Role, userData.Email)
			role, _ = services.ParseRole("viewer")
		}

		user, err := users.Register(cmd.Context(), services.RegisterInput{
			Email:     userData.Email,
			Password:  userData.Password,
			FirstName: userData.FirstName,
			LastName:  userData.LastName,
			Role:      role,
		})
		switch {
		case errors.Is(err, services.ErrUserExists):
			log.Printf("⚠️  User already exists: %s", userData.Email)
		case err != nil:
			log.Printf("Error creating user %s: %v", userData.Email, err)
		default:
			created++
			log.Printf("✅ Created user: %s (%s)", user.Email, user.Role)
		}
	}

	log.Printf("✅ User seeding completed: %d created", created)
	return nil
}
