package app

import (
	"mime"
	"net/http"
	"strings"

	"vision-scan/internal/domain/entity"
)

// ErrNotAnImage файл из галереи не является изображением.
var ErrNotAnImage = entity.NewScanError(entity.ErrInvalidImage, "file is not an image", nil)

// sniffImage проверяет, что данные похожи на изображение. Заявленный тип
// используется, только когда по содержимому тип не определяется.
func sniffImage(data []byte, declared string) (string, bool) {
	if len(data) == 0 {
		return "", false
	}

	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, true
	}

	if sniffed != "application/octet-stream" {
		return sniffed, false
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return sniffed, false
	}
	return mediaType, strings.HasPrefix(mediaType, "image/")
}
