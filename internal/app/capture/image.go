package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

var errEmptyTranscript = errors.New("empty transcript")

const msgImageFailed = "I couldn't analyze that photo. Please try again or describe your meal."

// ImageAnalyzer turns a food photo into composer text.
type ImageAnalyzer struct {
	describer domain.ImageDescriber
}

func NewImageAnalyzer(describer domain.ImageDescriber) *ImageAnalyzer {
	return &ImageAnalyzer{describer: describer}
}

// Describe returns the text to place in the composer for ref.
func (a *ImageAnalyzer) Describe(ctx context.Context, ref domain.ImageRef) (string, error) {
	if ref.URL == "" && len(ref.Data) == 0 {
		return "", domain.NewError(domain.CodeInvalidInput, "image has neither url nor data").
			WithUserMessage("That image looks empty.")
	}
	if a.describer == nil {
		return "", domain.NewError(domain.CodeImageAnalysis, "no image describer configured").
			WithUserMessage(msgImageFailed)
	}

	desc, err := a.describer.DescribeImage(ctx, ref)
	if err == nil && (desc == nil || strings.TrimSpace(desc.Description) == "") {
		err = errors.New("empty image description")
	}
	if err != nil {
		observability.CaptureErrors.WithLabelValues("image").Inc()
		observability.LoggerFromContext(ctx).Error("image analysis failed", "error", err)
		e := domain.NewError(domain.CodeImageAnalysis, "describe image").WithUserMessage(msgImageFailed)
		e.Underlying = err
		return "", e
	}

	return ComposeText(desc), nil
}

// ComposeText renders a description and its optional estimate.
func ComposeText(desc *domain.ImageDescription) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(desc.Description))

	if n := desc.EstimatedNutrition; n != nil {
		fmt.Fprintf(&sb, "\nEstimated: ~%.0f kcal, %.0f g protein, %.0f g carbs, %.0f g fat",
			n.Calories, n.ProteinG, n.CarbsG, n.FatG)
	}
	return sb.String()
}
