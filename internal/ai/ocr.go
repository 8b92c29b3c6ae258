package ai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

const ocrWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// OCR solves text captchas locally with Tesseract. It is the captcha
// backend for runs without a vision model.
type OCR struct {
	log *zap.Logger
}

// NewOCR returns a Tesseract-backed captcha solver. Requires the
// tesseract shared library at runtime.
func NewOCR(log *zap.Logger) *OCR {
	return &OCR{log: log}
}

// SolveCaptcha preprocesses the image (grayscale, 2x upscale) and runs
// it through Tesseract. Whitespace inside the answer is dropped since
// captcha answers never contain it.
func (o *OCR) SolveCaptcha(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return "", fmt.Errorf("decode captcha image: %w", err)
	}

	gray := imaging.Grayscale(src)
	scaled := imaging.Resize(gray, src.Bounds().Dx()*2, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode captcha image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetWhitelist(ocrWhitelist); err != nil {
		return "", fmt.Errorf("configure tesseract: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("load captcha image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}

	solution := strings.Join(strings.Fields(text), "")
	if solution == "" {
		return "", fmt.Errorf("tesseract found no text")
	}
	o.log.Info("captcha transcribed locally", zap.String("solution", solution))
	return solution, nil
}
