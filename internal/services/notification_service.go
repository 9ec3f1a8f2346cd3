// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/dipm-backend/internal/config"
	"github.com/javajoker/dipm-backend/internal/models"
)

type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

func (s *NotificationService) CreateNotification(userID uuid.UUID, notifType, title, message string, data map[string]interface{}) error {
	notification := &models.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    models.JSONB(data),
		Status:  models.NotificationStatusUnread,
	}
	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *NotificationService) GetUserNotifications(userID uuid.UUID, limit, offset int) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	query := s.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

func (s *NotificationService) MarkRead(notificationID, userID uuid.UUID) error {
	now := time.Now()
	result := s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]interface{}{
			"status":  models.NotificationStatusRead,
			"read_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(userID uuid.UUID) error {
	now := time.Now()
	return s.db.Model(&models.Notification{}).
		Where("user_id = ? AND status = ?", userID, models.NotificationStatusUnread).
		Updates(map[string]interface{}{
			"status":  models.NotificationStatusRead,
			"read_at": &now,
		}).Error
}

// Marketplace notifications

func (s *NotificationService) NotifyItemSold(seller *models.User, itemID uint64, itemTitle string, price float64) error {
	data := map[string]interface{}{"item_id": itemID, "price": price}
	title := "Item sold"
	message := fmt.Sprintf("Your item %q was purchased for %.2f.", itemTitle, price)

	if err := s.CreateNotification(seller.ID, "item_sold", title, message, data); err != nil {
		return err
	}

	tmpl := s.getEmailTemplate("item_sold")
	body, err := s.renderTemplate(tmpl.Body, map[string]interface{}{
		"Username":  seller.Username,
		"ItemTitle": itemTitle,
		"Price":     fmt.Sprintf("%.2f", price),
	})
	if err != nil {
		return err
	}
	return s.sendEmail(seller.Email, tmpl.Subject, body)
}

func (s *NotificationService) NotifyItemRented(owner *models.User, itemID, rentalID uint64, itemTitle string, amount float64, start, end time.Time) error {
	data := map[string]interface{}{
		"item_id":   itemID,
		"rental_id": rentalID,
		"amount":    amount,
	}
	title := "Item rented"
	message := fmt.Sprintf("Your item %q was rented from %s to %s for %.2f.",
		itemTitle, start.Format("2006-01-02"), end.Format("2006-01-02"), amount)

	if err := s.CreateNotification(owner.ID, "item_rented", title, message, data); err != nil {
		return err
	}

	tmpl := s.getEmailTemplate("item_rented")
	body, err := s.renderTemplate(tmpl.Body, map[string]interface{}{
		"Username":  owner.Username,
		"ItemTitle": itemTitle,
		"Amount":    fmt.Sprintf("%.2f", amount),
		"StartDate": start.Format("2006-01-02"),
		"EndDate":   end.Format("2006-01-02"),
	})
	if err != nil {
		return err
	}
	return s.sendEmail(owner.Email, tmpl.Subject, body)
}

func (s *NotificationService) NotifyDepositCompleted(user *models.User, amount float64) error {
	data := map[string]interface{}{"amount": amount}
	title := "Deposit completed"
	message := fmt.Sprintf("Your deposit of %.2f has been credited to your marketplace balance.", amount)

	if err := s.CreateNotification(user.ID, "deposit_completed", title, message, data); err != nil {
		return err
	}

	tmpl := s.getEmailTemplate("deposit_completed")
	body, err := s.renderTemplate(tmpl.Body, map[string]interface{}{
		"Username": user.Username,
		"Amount":   fmt.Sprintf("%.2f", amount),
	})
	if err != nil {
		return err
	}
	return s.sendEmail(user.Email, tmpl.Subject, body)
}

func (s *NotificationService) SendPasswordResetEmail(user *models.User, resetURL string) error {
	tmpl := s.getEmailTemplate("password_reset")
	body, err := s.renderTemplate(tmpl.Body, map[string]interface{}{
		"Username": user.Username,
		"ResetURL": resetURL,
	})
	if err != nil {
		return err
	}
	return s.sendEmail(user.Email, tmpl.Subject, body)
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Debug("email not configured, skipping send")
		return nil
	}

	// Setup authentication
	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	// Compose message
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	// Send email
	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"item_sold": {
			Subject: "Your item was sold",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Congratulations {{.Username}}!</h2>
	<p>Your item "{{.ItemTitle}}" was purchased for {{.Price}}.</p>
	<p>The proceeds have been credited to your marketplace balance.</p>
	<p>Best regards,<br>IP Marketplace Team</p>
</body>
</html>`,
		},
		"item_rented": {
			Subject: "Your item was rented",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>Your item "{{.ItemTitle}}" was rented from {{.StartDate}} to {{.EndDate}} for {{.Amount}}.</p>
	<p>Best regards,<br>IP Marketplace Team</p>
</body>
</html>`,
		},
		"deposit_completed": {
			Subject: "Deposit completed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>Your deposit of {{.Amount}} has been credited to your marketplace balance.</p>
	<p>Best regards,<br>IP Marketplace Team</p>
</body>
</html>`,
		},
		"password_reset": {
			Subject: "Password Reset Request",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>We received a request to reset your password. Click the link below to proceed:</p>
	<a href="{{.ResetURL}}">Reset Password</a>
	<p>If you did not request this, you can safely ignore this email.</p>
	<p>Best regards,<br>IP Marketplace Team</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
