// internal/services/file_service.go
package services

import (
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/dipm-backend/internal/models"
	"github.com/javajoker/dipm-backend/internal/utils"
)

var ErrFileAccessDenied = errors.New("file access denied")

// FileService manages uploaded files and their database records. Download
// access is granted by database ownership, current on-chain ownership of
// the registered item, or an active rental on it.
type FileService struct {
	db      *gorm.DB
	storage *StorageService
	ledgers *LedgerService
}

type UploadFileRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description" validate:"max=2000"`
	Price       float64  `json:"price" validate:"gte=0"`
	RentalPrice float64  `json:"rental_price" validate:"gte=0"`
	IsPublic    bool     `json:"is_public"`
	Tags        []string `json:"tags" validate:"max=10,dive,max=50"`
}

type FileDownload struct {
	Name     string
	MimeType string
	Data     []byte
}

func NewFileService(db *gorm.DB, storage *StorageService, ledgers *LedgerService) *FileService {
	return &FileService{
		db:      db,
		storage: storage,
		ledgers: ledgers,
	}
}

// Upload stores the file bytes and records the upload. The returned record
// carries the content id used as the ledger content reference when the
// owner later registers the file as a marketplace item.
func (s *FileService) Upload(ownerID uuid.UUID, file multipart.File, header *multipart.FileHeader, req *UploadFileRequest) (*models.FileRecord, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	options := s.storage.GetDefaultUploadOptions("marketplace_files")
	options.IsPublic = req.IsPublic

	stored, err := s.storage.StoreUpload(file, header, options)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	record := &models.FileRecord{
		OwnerID:     ownerID,
		Name:        req.Name,
		ContentID:   stored.ContentID,
		Size:        stored.Size,
		MimeType:    stored.MimeType,
		Description: req.Description,
		Price:       req.Price,
		RentalPrice: req.RentalPrice,
		IsPublic:    req.IsPublic,
		Tags:        pq.StringArray(req.Tags),
	}

	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"file_id":    record.ID,
		"content_id": record.ContentID,
		"size":       record.Size,
	}).Info("file uploaded")

	return record, nil
}

func (s *FileService) GetFile(fileID uuid.UUID) (*models.FileRecord, error) {
	var record models.FileRecord
	if err := s.db.Preload("Owner").First(&record, fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("file not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &record, nil
}

func (s *FileService) ListPublicFiles(params utils.PaginationParams) ([]models.FileRecord, int64, error) {
	query := s.db.Model(&models.FileRecord{}).Where("is_public = ?", true)

	if params.Search != "" {
		search := "%" + params.Search + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", search, search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	var records []models.FileRecord
	query = utils.ApplySort(query, params, []string{"created_at", "name", "size", "price"})
	query = utils.ApplyPagination(query, params)
	if err := query.Preload("Owner").Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}
	return records, total, nil
}

func (s *FileService) ListUserFiles(ownerID uuid.UUID, params utils.PaginationParams) ([]models.FileRecord, int64, error) {
	query := s.db.Model(&models.FileRecord{}).Where("owner_id = ?", ownerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	var records []models.FileRecord
	query = utils.ApplySort(query, params, []string{"created_at", "name", "size"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}
	return records, total, nil
}

// LinkItem records the ledger item id registered for a file. Only the
// uploading owner may link.
func (s *FileService) LinkItem(fileID, ownerID uuid.UUID, itemID uint64) error {
	result := s.db.Model(&models.FileRecord{}).
		Where("id = ? AND owner_id = ?", fileID, ownerID).
		Update("item_id", itemID)
	if result.Error != nil {
		return fmt.Errorf("failed to link item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New("file not found")
	}
	return nil
}

// FindByContentID resolves the file record behind a ledger content
// reference, used when rendering marketplace listings.
func (s *FileService) FindByContentID(contentID string) (*models.FileRecord, error) {
	var record models.FileRecord
	if err := s.db.Where("content_id = ?", contentID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("file not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &record, nil
}

// Download returns the file bytes if the requester is allowed to read them.
//
// Access is granted when any of these hold: the file is public, the
// requester uploaded it, the requester's wallet currently owns the
// registered ledger item, or the requester holds an active rental on it.
// When the ledger cannot be reached, downloads fall back to database
// ownership only.
func (s *FileService) Download(fileID, requesterID uuid.UUID, requesterWallet string) (*FileDownload, error) {
	record, err := s.GetFile(fileID)
	if err != nil {
		return nil, err
	}

	if !s.canDownload(record, requesterID, requesterWallet) {
		return nil, ErrFileAccessDenied
	}

	data, err := s.storage.Fetch(record.ContentID)
	if err != nil {
		return nil, err
	}

	return &FileDownload{
		Name:     record.Name,
		MimeType: record.MimeType,
		Data:     data,
	}, nil
}

func (s *FileService) canDownload(record *models.FileRecord, requesterID uuid.UUID, requesterWallet string) bool {
	if record.IsPublic || record.OwnerID == requesterID {
		return true
	}
	if record.ItemID == nil || requesterWallet == "" {
		return false
	}

	owns, err := s.ledgers.IsItemOwner(*record.ItemID, requesterWallet)
	if err != nil {
		if Unavailable(err) {
			logrus.WithField("item_id", *record.ItemID).Warn("ledger unreachable, denying item-based download access")
		}
		return false
	}
	if owns {
		return true
	}

	renting, err := s.ledgers.HasActiveRental(*record.ItemID, requesterWallet)
	if err != nil {
		return false
	}
	return renting
}
