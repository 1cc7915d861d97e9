package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/ticket-marketplace/internal/adapter/gateway"
	"github.com/rl1809/ticket-marketplace/internal/adapter/storage"
	"github.com/rl1809/ticket-marketplace/internal/config"
	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Seed a fresh event with a single tier
	now := time.Now()
	event := domain.Event{
		ID:          uuid.NewString(),
		OrganizerID: "stress-organizer",
		Title:       "Stress Test Night",
		Description: "Concurrent checkout",
		Category:    domain.CategoryMusic,
		StartDate:   now.AddDate(0, 1, 0),
		StartTime:   "19:00",
		EndDate:     now.AddDate(0, 1, 0),
		VenueName:   "Load Hall",
		Address:     "1 Benchmark Road",
		Status:      domain.EventStatusApproved,
		Tiers: []domain.Tier{
			{Name: domain.TierVIP, UnitPrice: decimal.NewFromInt(500), Remaining: initialStock, Allocated: initialStock},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := mysqlAdapter.CreateEvent(ctx, event); err != nil {
		log.Fatalf("failed to seed event: %v", err)
	}
	defer mysqlAdapter.DeleteEvent(ctx, event.ID)

	payments := gateway.NewFakeGateway(true)
	ticketService := service.NewTicketService(service.TicketServiceDeps{
		Events:   mysqlAdapter,
		Tickets:  mysqlAdapter,
		Attempts: mysqlAdapter,
		Cache:    storage.NewRedisAdapter(rdb, time.Hour),
		Gateway:  payments,
		Currency: cfg.Currency,
	})

	purchase := service.PurchaseRequest{
		EventID:  event.ID,
		TierName: domain.TierVIP,
		Quantity: 1,
		Price:    decimal.NewFromInt(500),
	}

	// Counters
	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var otherCount atomic.Int32

	// Spawn concurrent buyers
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			buyer := domain.Principal{UserID: fmt.Sprintf("stress-user-%d", n), Role: domain.RoleUser}
			intent, err := ticketService.CreateIntent(ctx, buyer, purchase)
			if err != nil {
				otherCount.Add(1)
				return
			}
			_, err = ticketService.Confirm(ctx, buyer, service.ConfirmRequest{
				PurchaseRequest: purchase,
				PaymentIntentID: intent.PaymentIntentID,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrInsufficientInventory):
				soldOutCount.Add(1)
			default:
				log.Printf("buyer %d: unexpected error: %v", n, err)
				otherCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Refund the buyers who paid but got nothing
	reconciler := service.NewReconciler(mysqlAdapter, mysqlAdapter, payments, nil, nil, time.Hour)
	reconciler.Run(ctx)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Refunded:         %d\n", payments.RefundCount())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d tickets sold, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	if payments.RefundCount() == int(soldOut) {
		fmt.Println("PASS: Every rejected buyer was refunded")
	} else {
		fmt.Printf("FAIL: Expected %d refunds, got %d\n", soldOut, payments.RefundCount())
	}

	// Verify final inventory in MySQL
	stored, err := mysqlAdapter.GetEvent(ctx, event.ID)
	if err != nil || stored == nil {
		log.Fatalf("failed to reload event: %v", err)
	}
	tier, _ := stored.Tier(domain.TierVIP)
	fmt.Printf("Final Remaining:  %d\n", tier.Remaining)

	if tier.Remaining == 0 {
		fmt.Println("PASS: Tier sold out to 0")
	} else {
		fmt.Printf("FAIL: Expected remaining 0, got %d\n", tier.Remaining)
	}
}
