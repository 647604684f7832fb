package storefront

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"

	"github.com/eringen/storefront/platform"
)

// normalizedTypes are the image formats re-encoded before upload. Anything
// else is uploaded as received.
var normalizedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// normalizeImage decodes src, scales it down to maxWidth when wider and
// re-encodes it as JPEG.
func normalizeImage(src []byte, maxWidth, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxWidth > 0 && w > maxWidth {
		newH := h * maxWidth / w
		if newH < 1 {
			newH = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// uploadFilename slugifies the base name and sets ext.
func uploadFilename(name, ext string) string {
	base := Slugify(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	if base == "" {
		base = "asset"
	}
	return base + ext
}

func (a *App) handleAssetUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return apiError(c, http.StatusBadRequest, "no file provided")
	}
	if file.Size > a.Config.Upload.MaxSize {
		return apiError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file too large (max %d bytes)", a.Config.Upload.MaxSize))
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, a.Config.Upload.MaxSize+1))
	if err != nil {
		return err
	}

	mimeType := http.DetectContentType(data)
	filename := uploadFilename(file.Filename, strings.ToLower(filepath.Ext(file.Filename)))
	if normalizedTypes[mimeType] {
		data, err = normalizeImage(data, a.Config.Upload.MaxImageWidth, a.Config.Upload.JPEGQuality)
		if err != nil {
			return apiError(c, http.StatusBadRequest, "invalid image: "+err.Error())
		}
		mimeType = "image/jpeg"
		filename = uploadFilename(file.Filename, ".jpg")
	} else if ct := file.Header.Get("Content-Type"); ct != "" && mimeType == "application/octet-stream" {
		mimeType = ct
	}

	asset, err := a.Uploader.Upload(c.Request().Context(), data, filename, mimeType)
	if err != nil {
		a.Logger.Error("asset upload failed", "filename", filename, "error", err)
		msg := "upload failed"
		if errors.Is(err, platform.ErrAssetFailed) {
			msg = "asset processing failed"
		}
		return apiError(c, http.StatusBadGateway, msg)
	}
	return c.JSON(http.StatusOK, AssetResponse{
		ID:       asset.ID,
		URL:      asset.URL,
		Status:   string(asset.Status),
		Filename: asset.Filename,
		MimeType: asset.MimeType,
		Size:     asset.Size,
	})
}
