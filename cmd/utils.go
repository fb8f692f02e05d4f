package cmd

import (
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"prediction-backend/internal/database"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// InitializeModelCatalog ensures the default priced models exist. Prices are
// immutable after creation, so existing rows are left untouched.
func InitializeModelCatalog(db *gorm.DB) {
	defaults := []database.Model{
		{
			Name:        "basic",
			Description: "Linear scoring model, one credit per prediction",
			Price:       decimal.NewFromInt(1),
		},
		{
			Name:        "advanced",
			Description: "Linear scoring model with extended feature schema",
			Price:       decimal.NewFromInt(10),
		},
	}

	for _, m := range defaults {
		var model database.Model
		if err := db.Where(database.Model{Name: m.Name}).Attrs(database.Model{
			Description:  m.Description,
			Price:        m.Price,
			CreationTime: time.Now().UTC(),
		}).FirstOrCreate(&model).Error; err != nil {
			log.Fatalf("Failed to create model record %s: %v", m.Name, err)
		}
	}
}
