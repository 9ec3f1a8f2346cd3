// internal/handlers/market.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/dipm-backend/internal/i18n"
	"github.com/javajoker/dipm-backend/internal/ledger"
	"github.com/javajoker/dipm-backend/internal/services"
	"github.com/javajoker/dipm-backend/internal/utils"
)

// MarketHandler exposes the marketplace ledger over HTTP. Write endpoints
// surface ledger failures; browse endpoints render an empty state with a
// ledger_available flag when the ledger cannot be reached.
type MarketHandler struct {
	ledgerService       *services.LedgerService
	fileService         *services.FileService
	authService         *services.AuthService
	notificationService *services.NotificationService
}

func NewMarketHandler(
	ledgerService *services.LedgerService,
	fileService *services.FileService,
	authService *services.AuthService,
	notificationService *services.NotificationService,
) *MarketHandler {
	return &MarketHandler{
		ledgerService:       ledgerService,
		fileService:         fileService,
		authService:         authService,
		notificationService: notificationService,
	}
}

// ledgerErrorResponse maps ledger error kinds onto HTTP statuses.
func ledgerErrorResponse(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		utils.BadRequestResponse(c, err.Error(), nil)
	case ledger.KindAuthorization:
		utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyLedgerNotOwner))
	case ledger.KindNotFound:
		utils.NotFoundResponse(c, "item")
	case ledger.KindInsufficientPayment:
		utils.ErrorResponse(c, http.StatusPaymentRequired, "INSUFFICIENT_PAYMENT",
			i18n.T(lang, i18n.KeyLedgerInsufficientPayment), err.Error())
	case ledger.KindState:
		utils.ConflictResponse(c, err.Error())
	case ledger.KindTransport:
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE",
			i18n.T(lang, i18n.KeyLedgerUnavailable), nil)
	default:
		utils.InternalErrorResponse(c, err.Error())
	}
}

func walletFromContext(c *gin.Context) (string, bool) {
	wallet, exists := c.Get("wallet_address")
	if !exists {
		return "", false
	}
	walletStr, ok := wallet.(string)
	return walletStr, ok && walletStr != ""
}

type registerItemBody struct {
	services.RegisterItemRequest
	FileID *uuid.UUID `json:"file_id,omitempty"`
}

// POST /market/items
func (h *MarketHandler) RegisterItem(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	wallet, ok := walletFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var body registerItemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&body.RegisterItemRequest)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	itemID, err := h.ledgerService.RegisterItem(c.Request.Context(), wallet, &body.RegisterItemRequest)
	if err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	if body.FileID != nil {
		userIDStr, _ := utils.GetUserIDFromContext(c)
		if userID, parseErr := uuid.Parse(userIDStr); parseErr == nil {
			if linkErr := h.fileService.LinkItem(*body.FileID, userID, itemID); linkErr != nil {
				logrus.WithError(linkErr).WithField("item_id", itemID).Warn("item registered but file link failed")
			}
		}
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyItemCreated),
		"item_id": itemID,
	})
}

// GET /market/items
func (h *MarketHandler) ListActiveItems(c *gin.Context) {
	offset, _ := strconv.ParseUint(c.DefaultQuery("offset", "0"), 10, 64)
	limit, _ := strconv.ParseUint(c.DefaultQuery("limit", "20"), 10, 64)
	if limit == 0 || limit > 100 {
		limit = 20
	}

	items, err := h.ledgerService.GetActiveItems(offset, limit)
	if err != nil {
		if services.Unavailable(err) {
			utils.SuccessResponseWithMeta(c, []services.ItemView{}, gin.H{"ledger_available": false})
			return
		}
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, items, gin.H{
		"ledger_available": true,
		"offset":           offset,
		"limit":            limit,
	})
}

// GET /market/items/:id
func (h *MarketHandler) GetItem(c *gin.Context) {
	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	item, err := h.ledgerService.GetItem(itemID)
	if err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"item": item})
}

// GET /market/items/:id/history
func (h *MarketHandler) GetOwnershipHistory(c *gin.Context) {
	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	history, err := h.ledgerService.GetOwnershipHistory(itemID)
	if err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"history": history})
}

// GET /market/items/:id/renters
func (h *MarketHandler) GetItemRenters(c *gin.Context) {
	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	renters, err := h.ledgerService.GetItemRenters(itemID)
	if err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"renters": renters})
}

type purchaseBody struct {
	Payment float64 `json:"payment" validate:"required,gt=0"`
}

// POST /market/items/:id/purchase
func (h *MarketHandler) PurchaseItem(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	wallet, ok := walletFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	var body purchaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&body)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	// Snapshot the seller before ownership changes hands
	var sellerWallet string
	if item, itemErr := h.ledgerService.GetItem(itemID); itemErr == nil {
		sellerWallet = item.Owner
	}

	if err := h.ledgerService.PurchaseItem(c.Request.Context(), wallet, itemID, body.Payment); err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	h.notifySale(sellerWallet, itemID, body.Payment)

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyItemPurchased),
		"item_id": itemID,
	})
}

type rentBody struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	Payment   float64   `json:"payment" validate:"required,gt=0"`
}

// POST /market/items/:id/rent
func (h *MarketHandler) RentItem(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	wallet, ok := walletFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	var body rentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&body)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	var ownerWallet string
	if item, itemErr := h.ledgerService.GetItem(itemID); itemErr == nil {
		ownerWallet = item.Owner
	}

	rentalID, err := h.ledgerService.RentItem(c.Request.Context(), wallet, itemID, body.StartTime, body.EndTime, body.Payment)
	if err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	h.notifyRental(ownerWallet, itemID, rentalID, body.Payment, body.StartTime, body.EndTime)

	utils.CreatedResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyItemRented),
		"rental_id": rentalID,
	})
}

// GET /market/items/:id/quote?start=...&end=...
func (h *MarketHandler) QuoteRental(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "start"), nil)
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "end"), nil)
		return
	}

	cost, err := h.ledgerService.QuoteRentalCost(itemID, start, end)
	if err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"item_id": itemID,
		"start":   start,
		"end":     end,
		"cost":    cost,
	})
}

type updatePricesBody struct {
	Price       float64 `json:"price" validate:"gte=0"`
	RentalPrice float64 `json:"rental_price" validate:"gte=0"`
}

// PUT /market/items/:id/prices
func (h *MarketHandler) UpdateItemPrices(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	wallet, ok := walletFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	var body updatePricesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if err := h.ledgerService.UpdateItemPrices(c.Request.Context(), wallet, itemID, body.Price, body.RentalPrice); err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyItemUpdated),
		"item_id": itemID,
	})
}

// POST /market/items/:id/deactivate
func (h *MarketHandler) DeactivateItem(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	wallet, ok := walletFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	if err := h.ledgerService.DeactivateItem(c.Request.Context(), wallet, itemID); err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyItemDeactivated),
		"item_id": itemID,
	})
}

// GET /market/rentals/:id
func (h *MarketHandler) GetRental(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	rentalID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "rental id"), nil)
		return
	}

	rental, err := h.ledgerService.GetRental(rentalID)
	if err != nil {
		if ledger.IsKind(err, ledger.KindNotFound) {
			utils.NotFoundResponse(c, "rental")
			return
		}
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"rental": rental})
}

// GET /market/my/items
func (h *MarketHandler) GetMyItems(c *gin.Context) {
	wallet, ok := walletFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	itemIDs, err := h.ledgerService.GetUserItems(wallet)
	if err != nil {
		if services.Unavailable(err) {
			utils.SuccessResponseWithMeta(c, []uint64{}, gin.H{"ledger_available": false})
			return
		}
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, itemIDs, gin.H{"ledger_available": true})
}

// GET /market/my/rentals
func (h *MarketHandler) GetMyRentals(c *gin.Context) {
	wallet, ok := walletFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	rentalIDs, err := h.ledgerService.GetUserRentals(wallet)
	if err != nil {
		if services.Unavailable(err) {
			utils.SuccessResponseWithMeta(c, []uint64{}, gin.H{"ledger_available": false})
			return
		}
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, rentalIDs, gin.H{"ledger_available": true})
}

// GET /market/stats
func (h *MarketHandler) GetStats(c *gin.Context) {
	totalItems, err := h.ledgerService.GetTotalItems()
	if err != nil {
		if services.Unavailable(err) {
			utils.SuccessResponseWithMeta(c, gin.H{}, gin.H{"ledger_available": false})
			return
		}
		ledgerErrorResponse(c, err)
		return
	}
	totalRentals, err := h.ledgerService.GetTotalRentals()
	if err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, gin.H{
		"total_items":   totalItems,
		"total_rentals": totalRentals,
	}, gin.H{"ledger_available": true})
}

// GET /market/balance
func (h *MarketHandler) GetBalance(c *gin.Context) {
	wallet, ok := walletFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	balance, err := h.ledgerService.Balance(wallet)
	if err != nil {
		ledgerErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"wallet_address": wallet,
		"balance":        balance,
	})
}

// parseItemID extracts the :id path parameter, writing a 400 response on
// failure. Callers must return without writing when ok is false.
func parseItemID(c *gin.Context) (uint64, bool) {
	lang := utils.GetLangFromContext(c)
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || itemID == 0 {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "item id"), nil)
		return 0, false
	}
	return itemID, true
}

func (h *MarketHandler) notifySale(sellerWallet string, itemID uint64, price float64) {
	if sellerWallet == "" {
		return
	}
	seller, err := h.authService.GetUserByWallet(sellerWallet)
	if err != nil {
		return
	}
	itemTitle := ""
	if item, err := h.ledgerService.GetItem(itemID); err == nil {
		itemTitle = item.Title
	}
	if err := h.notificationService.NotifyItemSold(seller, itemID, itemTitle, price); err != nil {
		logrus.WithError(err).Warn("failed to send sale notification")
	}
}

func (h *MarketHandler) notifyRental(ownerWallet string, itemID, rentalID uint64, amount float64, start, end time.Time) {
	if ownerWallet == "" {
		return
	}
	owner, err := h.authService.GetUserByWallet(ownerWallet)
	if err != nil {
		return
	}
	itemTitle := ""
	if item, err := h.ledgerService.GetItem(itemID); err == nil {
		itemTitle = item.Title
	}
	if err := h.notificationService.NotifyItemRented(owner, itemID, rentalID, itemTitle, amount, start, end); err != nil {
		logrus.WithError(err).Warn("failed to send rental notification")
	}
}
