package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/models"
	"social-publisher-platform/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to MongoDB
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.DBName)
	usersCollection := db.Collection("users")

	// Check if admin already exists
	var existingAdmin models.User
	err = usersCollection.FindOne(context.Background(), bson.M{"role": "admin"}).Decode(&existingAdmin)
	if err == nil {
		fmt.Println("✅ Admin user already exists!")
		fmt.Printf("   Username: %s\n", existingAdmin.Username)
		fmt.Printf("   Email: %s\n", existingAdmin.Email)
		os.Exit(0)
	}

	// Get admin credentials from environment or use defaults
	adminUsername := os.Getenv("ADMIN_USERNAME")
	if adminUsername == "" {
		adminUsername = "admin"
	}

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "ChangeMe123!" // ⚠️ Change this in production!
		fmt.Println("⚠️  WARNING: Using default password. Set ADMIN_PASSWORD environment variable!")
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@example.com"
	}

	// Hash password
	hashedPassword, err := utils.HashPassword(adminPassword, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	// Create admin user
	adminUser := models.User{
		Username:     adminUsername,
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Role:         "admin",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	result, err := usersCollection.InsertOne(context.Background(), adminUser)
	if err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	fmt.Printf("✅ Admin user created successfully!\n")
	fmt.Printf("   Username: %s\n", adminUsername)
	fmt.Printf("   Password: %s\n", adminPassword)
	fmt.Printf("   Email: %s\n", adminEmail)
	fmt.Printf("   User ID: %s\n", result.InsertedID.(primitive.ObjectID).Hex())
	fmt.Printf("\n⚠️  IMPORTANT: Change the password after first login!\n")
	fmt.Printf("\n📝 Next steps:\n")
	fmt.Printf("   1. Login at POST http://localhost:8080/auth/login\n")
	fmt.Printf("   2. Connect a social profile at GET /oauth/{platform}/connect\n")
}
