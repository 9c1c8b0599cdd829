// Command seed creates the default staff accounts and issue categories.
package main

import (
	"context"
	"time"

	"civicbounty-be/config"
	"civicbounty-be/logger"
	"civicbounty-be/models"
	"civicbounty-be/services"

	"github.com/joho/godotenv"
)

const defaultStaffPassword = "password123"

var staffUsernames = []string{"staff1", "staff2"}

func main() {
	log := logger.NewDefault("seed")
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}

	cfg, err := config.LoadStore()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := config.OpenStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer db.Close(context.Background())

	categories := services.NewCategories(db)
	if err := categories.Seed(ctx, models.DefaultCategories); err != nil {
		log.WithError(err).Fatal("failed to seed categories")
	}
	log.WithField("count", len(models.DefaultCategories)).Info("categories seeded")

	accounts := services.NewAccounts(db, log)
	for _, username := range staffUsernames {
		user, created, err := accounts.EnsureStaff(ctx, services.Registration{
			Username: username,
			Email:    username + "@example.com",
			Password: defaultStaffPassword,
		}, models.RoleStaff)
		if err != nil {
			log.WithError(err).WithField("username", username).Fatal("failed to seed staff user")
		}
		if created {
			log.WithField("username", user.Username).Info("created staff user")
		} else {
			log.WithField("username", user.Username).Info("staff user already exists, role ensured")
		}
	}
}
