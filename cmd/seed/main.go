package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sahaana/coopvault/backend/internal/domain"
	"github.com/sahaana/coopvault/backend/internal/ledger"
)

var firstNames = []string{"Amina", "Bilal", "Carlos", "Dalia", "Elena", "Farid", "Grace", "Hamid", "Ines", "Jonas"}
var lastNames = []string{"Alvarez", "Bakker", "Chen", "Diallo", "Eriksen", "Fontaine", "Garcia", "Haddad", "Ibrahim", "Jansen"}

func main() {
	var (
		users        = flag.Int("users", 10, "number of demo users to create")
		transactions = flag.Int("transactions", 30, "number of pending transactions to create")
		uri          = flag.String("uri", os.Getenv("MONGO_URI"), "mongodb connection uri")
		database     = flag.String("database", "coopvault", "database name")
		seed         = flag.Int64("seed", 42, "random seed for deterministic generation")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := ledger.NewMongoStore(ctx, ledger.MongoOptions{URI: *uri, Database: *database})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	rng := rand.New(rand.NewSource(*seed))

	created := make([]domain.User, 0, *users)
	for i := 0; i < *users; i++ {
		name := firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))]
		user, err := store.CreateUser(ctx, domain.User{
			Name:              name,
			Email:             fmt.Sprintf("demo%d@coopvault.test", i+1),
			SavingsBalanceUSD: float64(rng.Intn(5000)),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create user: %v\n", err)
			os.Exit(1)
		}
		created = append(created, user)
	}

	for i := 0; i < *transactions; i++ {
		owner := created[rng.Intn(len(created))]
		tx := pendingTransaction(rng, owner, i)
		if _, err := store.CreateTransaction(ctx, tx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create transaction: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stdout, "Seeded %d users and %d pending transactions into %s\n", *users, *transactions, *database)
}

func pendingTransaction(rng *rand.Rand, owner domain.User, n int) domain.Transaction {
	tx := domain.Transaction{
		ExternalID: fmt.Sprintf("SEED-%04d", n+1),
		Status:     domain.StatusPending,
		Currency:   "USD",
		Timestamp:  time.Now().Add(-time.Duration(rng.Intn(72)) * time.Hour),
		UserID:     owner.ID,
		UserName:   owner.Name,
		UserEmail:  owner.Email,
	}

	switch rng.Intn(4) {
	case 0:
		tx.Type = domain.TypeLoan
		tx.LoanAmount = float64(100 + rng.Intn(20)*50)
		tx.CollateralBTC = rng.Float64()
		tx.Description = "BTC-backed loan request"
	case 1:
		tx.Type = domain.TypeMembership
		tx.Amount = 1000
		tx.Description = "Annual membership fee"
	case 2:
		tx.Type = domain.TypeWithdrawal
		tx.Amount = float64(50 + rng.Intn(10)*25)
		tx.Description = "Savings withdrawal"
	default:
		tx.Type = domain.TypeDeposit
		tx.Amount = float64(100 + rng.Intn(30)*25)
		tx.Description = "Savings deposit"
	}
	return tx
}
