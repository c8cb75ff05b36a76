package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"parking_backend/internal/domain"
)

var ErrNoTextFound = errors.New("no text detected in image")
var ErrPlateNotFound = errors.New("no valid plate format found in image text")

// plateRegex is matched against the full detected text; the first match wins.
var plateRegex = regexp.MustCompile(`[A-Z]{3}[-\s]?\d{3,4}`)
var plateSeparators = regexp.MustCompile(`[-\s]`)

// TextDetector is the vision backend. It returns the text lines found in an image,
// or ErrNoTextFound.
type TextDetector interface {
	DetectText(ctx context.Context, image []byte) ([]string, error)
}

// ImageStore keeps uploaded plate images and returns a URL to read them back.
type ImageStore interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type rekognitionAPI interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

type RekognitionTextDetector struct {
	client rekognitionAPI
}

func NewRekognitionTextDetector(client *rekognition.Client) *RekognitionTextDetector {
	if client == nil {
		return &RekognitionTextDetector{}
	}
	return &RekognitionTextDetector{client: client}
}

func (d *RekognitionTextDetector) DetectText(ctx context.Context, image []byte) ([]string, error) {
	if d.client == nil {
		return nil, fmt.Errorf("rekognition client is not initialized")
	}
	log.Println("LPRService: calling Rekognition DetectText...")
	result, err := d.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		log.Printf("LPRService: Rekognition DetectText failed: %v", err)
		return nil, fmt.Errorf("rekognition error: %w", err)
	}

	var lines []string
	for _, td := range result.TextDetections {
		if td.Type == types.TextTypesLine && td.DetectedText != nil {
			lines = append(lines, *td.DetectedText)
		}
	}
	log.Printf("LPRService: Rekognition returned %d text blocks, %d lines", len(result.TextDetections), len(lines))
	if len(lines) == 0 {
		return nil, ErrNoTextFound
	}
	return lines, nil
}

// ExtractPlate returns the first plate-shaped token in text with separators stripped.
func ExtractPlate(text string) (string, bool) {
	match := plateRegex.FindString(text)
	if match == "" {
		return "", false
	}
	return plateSeparators.ReplaceAllString(match, ""), true
}

type LPRService struct {
	detector TextDetector
	images   ImageStore
	now      func() time.Time
}

// NewLPRService builds the recognizer. images may be nil, in which case nothing is uploaded.
func NewLPRService(detector TextDetector, images ImageStore) *LPRService {
	return &LPRService{detector: detector, images: images, now: time.Now}
}

// Recognize uploads the image and reads its plate. The image URL is returned even when
// no plate is found.
func (s *LPRService) Recognize(ctx context.Context, filename, contentType string, image []byte) (*domain.LPRResponseDTO, error) {
	resp := &domain.LPRResponseDTO{}
	if s.images != nil {
		key := fmt.Sprintf("plates/%d_%s", s.now().UnixMilli(), path.Base(filename))
		url, err := s.images.Upload(ctx, key, contentType, image)
		if err != nil {
			return nil, fmt.Errorf("error uploading plate image: %w", err)
		}
		resp.ImageURL = url
	}

	lines, err := s.detector.DetectText(ctx, image)
	if err != nil {
		if errors.Is(err, ErrNoTextFound) {
			resp.ErrorMessage = ErrNoTextFound.Error()
			return resp, ErrNoTextFound
		}
		return nil, err
	}

	plate, ok := ExtractPlate(strings.Join(lines, "\n"))
	if !ok {
		log.Printf("LPRService: no plate in detected text: %q", strings.Join(lines, " | "))
		resp.ErrorMessage = ErrPlateNotFound.Error()
		return resp, ErrPlateNotFound
	}
	log.Printf("LPRService: recognized plate %s", plate)
	resp.PlateNumber = plate
	return resp, nil
}
