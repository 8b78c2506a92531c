package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"

	"github.com/krlozs/isp-ai/internal/config"
)

// MediaStore uploads evidence photos and returns their public URL.
type MediaStore interface {
	SubirEvidencia(ctx context.Context, data []byte, ticketID string) (string, error)
}

// CloudinaryService implements MediaStore on Cloudinary.
type CloudinaryService struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryService creates the media store client.
func NewCloudinaryService(cfg *config.Config) (*CloudinaryService, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloud, cfg.CloudinaryKey, cfg.CloudinarySecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryService{cld: cld}, nil
}

// SubirEvidencia stores a technician photo under a collision-free public id
// and returns the secure URL.
func (c *CloudinaryService) SubirEvidencia(ctx context.Context, data []byte, ticketID string) (string, error) {
	ticketStr := ""
	if ticketID != "" {
		ticketStr = "ticket_" + ticketID + "_"
	}
	publicID := fmt.Sprintf("evidencias_tecnicos/%s%s_%s",
		ticketStr, time.Now().Format("20060102_150405"), uuid.NewString()[:8])

	res, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     publicID,
		Overwrite:    api.Bool(false),
		ResourceType: "image",
	})
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}
