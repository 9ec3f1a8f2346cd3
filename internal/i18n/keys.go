// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"
	KeyWarning = "warning"
	KeyInfo    = "info"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserNotFound       = "auth.user_not_found"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthLogoutSuccess      = "auth.logout_success"
	KeyAuthRegisterSuccess    = "auth.register_success"
	KeyAuthPasswordResetSent  = "auth.password_reset_sent"
	KeyAuthPasswordResetDone  = "auth.password_reset_success"

	// User Management
	KeyUserProfileUpdated = "user.profile_updated"
	KeyUserNotFound       = "user.not_found"
	KeyUserSuspended      = "user.suspended"

	// Marketplace items
	KeyItemCreated     = "item.created"
	KeyItemPurchased   = "item.purchased"
	KeyItemRented      = "item.rented"
	KeyItemUpdated     = "item.updated"
	KeyItemDeactivated = "item.deactivated"
	KeyItemNotFound    = "item.not_found"
	KeyItemNotForSale  = "item.not_for_sale"
	KeyItemNotForRent  = "item.not_for_rent"

	// Rentals
	KeyRentalNotFound      = "rental.not_found"
	KeyRentalWindowInvalid = "rental.window_invalid"

	// Ledger
	KeyLedgerUnavailable         = "ledger.unavailable"
	KeyLedgerInsufficientPayment = "ledger.insufficient_payment"
	KeyLedgerNotOwner            = "ledger.not_owner"

	// Payments
	KeyPaymentSuccess       = "payment.success"
	KeyPaymentFailed        = "payment.failed"
	KeyPaymentPending       = "payment.pending"
	KeyPaymentInvalidAmount = "payment.invalid_amount"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationTooShort = "validation.too_short"
	KeyValidationTooLong  = "validation.too_long"
	KeyValidationEmail    = "validation.invalid_email"
	KeyValidationPassword = "validation.invalid_password"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"
	KeyFileNotFound      = "file.not_found"
	KeyFileAccessDenied  = "file.access_denied"

	// Notifications
	KeyNotificationSent   = "notification.sent"
	KeyNotificationFailed = "notification.failed"
)
