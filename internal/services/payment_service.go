// internal/services/payment_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"gorm.io/gorm"

	"github.com/javajoker/dipm-backend/internal/config"
	"github.com/javajoker/dipm-backend/internal/ledger"
	"github.com/javajoker/dipm-backend/internal/models"
	"github.com/javajoker/dipm-backend/internal/utils"
)

// PaymentService funds marketplace wallets. A deposit is collected through
// Stripe in fiat and, once the payment intent succeeds, credited to the
// user's ledger balance in minor units.
type PaymentService struct {
	db            *gorm.DB
	config        *config.Config
	book          *ledger.Book
	ledgers       *LedgerService
	notifications *NotificationService
}

type CreateDepositRequest struct {
	Amount   float64 `json:"amount" validate:"required,min=0.01"`
	Currency string  `json:"currency,omitempty"`
}

type DepositIntentResponse struct {
	ClientSecret string    `json:"client_secret"`
	PaymentID    string    `json:"payment_id"`
	DepositID    uuid.UUID `json:"deposit_id"`
	Status       string    `json:"status"`
}

type ConfirmDepositRequest struct {
	PaymentIntentID string    `json:"payment_intent_id" validate:"required"`
	DepositID       uuid.UUID `json:"deposit_id" validate:"required"`
}

func NewPaymentService(db *gorm.DB, config *config.Config, book *ledger.Book, ledgers *LedgerService, notifications *NotificationService) *PaymentService {
	// Initialize Stripe
	stripe.Key = config.Payment.StripeSecretKey

	return &PaymentService{
		db:            db,
		config:        config,
		book:          book,
		ledgers:       ledgers,
		notifications: notifications,
	}
}

// CreateDeposit opens a Stripe payment intent and records a pending
// deposit. The ledger balance is not touched until the intent succeeds.
func (s *PaymentService) CreateDeposit(userID uuid.UUID, req *CreateDepositRequest) (*DepositIntentResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if req.Amount < s.config.Payment.MinimumDeposit {
		return nil, fmt.Errorf("minimum deposit amount is $%.2f", s.config.Payment.MinimumDeposit)
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	// Convert amount to cents for Stripe
	amountInCents := int64(req.Amount * 100)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(currency),
	}
	params.AddMetadata("user_id", userID.String())
	params.AddMetadata("purpose", "wallet_deposit")

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	deposit := &models.Deposit{
		UserID:           userID,
		Amount:           req.Amount,
		AmountMinor:      s.ledgers.ToMinorUnits(req.Amount),
		PaymentReference: pi.ID,
		Status:           models.DepositStatusPending,
	}
	if err := s.db.Create(deposit).Error; err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	return &DepositIntentResponse{
		ClientSecret: pi.ClientSecret,
		PaymentID:    pi.ID,
		DepositID:    deposit.ID,
		Status:       string(pi.Status),
	}, nil
}

// ConfirmDeposit checks the payment intent's status with Stripe and, on
// success, credits the user's ledger balance. Confirming an already
// completed deposit is a no-op so retried confirmations never credit
// twice.
func (s *PaymentService) ConfirmDeposit(userID uuid.UUID, req *ConfirmDepositRequest) (*models.Deposit, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var deposit models.Deposit
	if err := s.db.Where("id = ? AND user_id = ?", req.DepositID, userID).First(&deposit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("deposit not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if deposit.Status == models.DepositStatusCompleted {
		return &deposit, nil
	}
	if deposit.PaymentReference != req.PaymentIntentID {
		return nil, errors.New("payment intent does not match deposit")
	}

	pi, err := paymentintent.Get(req.PaymentIntentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		var user models.User
		if err := s.db.First(&user, userID).Error; err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}

		now := time.Now()
		deposit.Status = models.DepositStatusCompleted
		deposit.ProcessedAt = &now
		if err := s.db.Save(&deposit).Error; err != nil {
			return nil, fmt.Errorf("failed to update deposit: %w", err)
		}

		s.book.Deposit(ledger.Address(user.WalletAddress), deposit.AmountMinor)

		logrus.WithFields(logrus.Fields{
			"deposit_id": deposit.ID,
			"user_id":    userID,
			"amount":     deposit.Amount,
		}).Info("deposit credited to ledger balance")

		if err := s.notifications.NotifyDepositCompleted(&user, deposit.Amount); err != nil {
			logrus.WithError(err).Warn("failed to send deposit notification")
		}

	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusProcessing:
		// Still in flight, leave the deposit pending

	default:
		deposit.Status = models.DepositStatusFailed
		if err := s.db.Save(&deposit).Error; err != nil {
			return nil, fmt.Errorf("failed to update deposit: %w", err)
		}
	}

	return &deposit, nil
}

func (s *PaymentService) GetDepositHistory(userID uuid.UUID, params utils.PaginationParams) ([]models.Deposit, int64, error) {
	query := s.db.Model(&models.Deposit{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count deposits: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var deposits []models.Deposit
	if err := query.Find(&deposits).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch deposits: %w", err)
	}
	return deposits, total, nil
}

// GetUserBalance reports the spendable ledger balance plus lifetime
// deposit totals from the database.
func (s *PaymentService) GetUserBalance(userID uuid.UUID) (map[string]interface{}, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var totalDeposited float64
	s.db.Model(&models.Deposit{}).
		Where("user_id = ? AND status = ?", userID, models.DepositStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").Scan(&totalDeposited)

	balance, err := s.ledgers.Balance(user.WalletAddress)
	ledgerAvailable := true
	if err != nil {
		if !Unavailable(err) {
			return nil, err
		}
		ledgerAvailable = false
		balance = 0
	}

	return map[string]interface{}{
		"wallet_address":    user.WalletAddress,
		"available_balance": balance,
		"total_deposited":   totalDeposited,
		"ledger_available":  ledgerAvailable,
		"currency":          "USD",
	}, nil
}
