package main

import (
	"flag"
	"log"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"healthcare-scheduler/internal/config"
	"healthcare-scheduler/internal/models"
)

const defaultPassword = "password123"

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	doctors := flag.Int("doctors", 10, "number of doctors to create")
	patients := flag.Int("patients", 200, "number of patients to create")
	adminEmail := flag.String("admin", "admin@example.com", "email of the admin account to create, empty to skip")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := models.InitDB(models.DatabaseConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}

	log.Println("seed starting")
	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	// shared bcrypt hash for every seeded account
	var hashed models.User
	if err := hashed.SetPassword(defaultPassword); err != nil {
		log.Fatalf("hash password: %v", err)
	}

	if err := seedAdmin(db, *adminEmail, hashed.Password); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	doctorIDs, err := seedDoctors(db, faker, *doctors, hashed.Password)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(db, faker, *patients, doctorIDs, hashed.Password); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Printf("seed complete, every account uses password %q", defaultPassword)
}

// seedAdmin creates the admin account unless one already uses email.
func seedAdmin(db *gorm.DB, email, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	admin := models.User{
		FirstName: "System",
		LastName:  "Admin",
		Email:     email,
		Password:  passwordHash,
		Role:      models.RoleAdmin,
	}
	res := db.Where(models.User{Email: email}).FirstOrCreate(&admin)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("admin %s already exists", email)
		return nil
	}
	log.Printf("admin %s created", email)
	return nil
}

func seedDoctors(db *gorm.DB, faker *gofakeit.Faker, count int, passwordHash string) ([]string, error) {
	log.Printf("seeding %d doctors", count)

	ids := make([]string, 0, count)
	err := db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < count; i++ {
			doctor := models.User{
				FirstName:   faker.FirstName(),
				LastName:    faker.LastName(),
				Email:       uniqueEmail(faker, "dr"),
				Password:    passwordHash,
				Role:        models.RoleDoctor,
				Specialty:   specialties[faker.Number(0, len(specialties)-1)],
				PhoneNumber: faker.Phone(),
			}
			if err := tx.Create(&doctor).Error; err != nil {
				return err
			}
			ids = append(ids, doctor.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(db *gorm.DB, faker *gofakeit.Faker, count int, doctorIDs []string, passwordHash string) error {
	if len(doctorIDs) == 0 {
		log.Println("no doctors, skipping patients")
		return nil
	}
	log.Printf("seeding %d patients", count)

	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		batch := make([]models.User, 0, end-offset)
		for i := offset; i < end; i++ {
			dob := faker.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0))
			doctorID := doctorIDs[faker.Number(0, len(doctorIDs)-1)]
			batch = append(batch, models.User{
				FirstName:        faker.FirstName(),
				LastName:         faker.LastName(),
				Email:            uniqueEmail(faker, "pt"),
				Password:         passwordHash,
				Role:             models.RolePatient,
				DateOfBirth:      &dob,
				Gender:           faker.Gender(),
				PhoneNumber:      faker.Phone(),
				Address:          faker.Address().Address,
				AssignedDoctorID: &doctorID,
			})
		}

		if err := db.CreateInBatches(&batch, batchSize).Error; err != nil {
			return err
		}
		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// uniqueEmail prefixes a fake address so reruns rarely collide.
func uniqueEmail(faker *gofakeit.Faker, prefix string) string {
	return strings.ToLower(prefix + "." + faker.LetterN(6) + "." + faker.Email())
}
