// internal/handlers/file.go
package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/dipm-backend/internal/i18n"
	"github.com/javajoker/dipm-backend/internal/services"
	"github.com/javajoker/dipm-backend/internal/utils"
)

type FileHandler struct {
	fileService *services.FileService
}

func NewFileHandler(fileService *services.FileService) *FileHandler {
	return &FileHandler{
		fileService: fileService,
	}
}

// POST /files
func (h *FileHandler) Upload(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "file"), nil)
		return
	}
	defer file.Close()

	price, _ := strconv.ParseFloat(c.PostForm("price"), 64)
	rentalPrice, _ := strconv.ParseFloat(c.PostForm("rental_price"), 64)
	isPublic, _ := strconv.ParseBool(c.PostForm("is_public"))

	var tags []string
	if raw := c.PostForm("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
	}

	name := c.PostForm("name")
	if name == "" {
		name = header.Filename
	}

	req := &services.UploadFileRequest{
		Name:        name,
		Description: c.PostForm("description"),
		Price:       price,
		RentalPrice: rentalPrice,
		IsPublic:    isPublic,
		Tags:        tags,
	}

	record, err := h.fileService.Upload(userID, file, header, req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyFileUploadSuccess),
		"file":    record,
		// Ready-to-submit body for POST /market/items
		"item_payload": gin.H{
			"title":        record.Name,
			"description":  record.Description,
			"content_ref":  record.ContentID,
			"price":        record.Price,
			"rental_price": record.RentalPrice,
			"file_id":      record.ID,
		},
	})
}

// GET /files
func (h *FileHandler) ListPublic(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	records, total, err := h.fileService.ListPublicFiles(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(records, total, params))
}

// GET /files/my
func (h *FileHandler) ListMine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	records, total, err := h.fileService.ListUserFiles(userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(records, total, params))
}

// GET /files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	fileID, ok := parseFileID(c)
	if !ok {
		return
	}

	record, err := h.fileService.GetFile(fileID)
	if err != nil {
		utils.NotFoundResponse(c, "file")
		return
	}

	utils.SuccessResponse(c, gin.H{"file": record})
}

// GET /files/:id/download
func (h *FileHandler) Download(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	fileID, ok := parseFileID(c)
	if !ok {
		return
	}

	wallet, _ := walletFromContext(c)

	download, err := h.fileService.Download(fileID, userID, wallet)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFileAccessDenied):
			utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyFileAccessDenied))
		case errors.Is(err, services.ErrContentNotFound):
			utils.NotFoundResponse(c, "file")
		default:
			utils.NotFoundResponse(c, "file")
		}
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+download.Name+"\"")
	c.Data(200, download.MimeType, download.Data)
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func parseFileID(c *gin.Context) (uuid.UUID, bool) {
	lang := utils.GetLangFromContext(c)
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "file id"), nil)
		return uuid.Nil, false
	}
	return fileID, true
}
