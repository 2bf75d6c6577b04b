package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// VertexConfig selects the Gemini deployment.
type VertexConfig struct {
	Project  string
	Location string
	Model    string
}

type VertexClient struct {
	client    *genai.Client
	modelName string
}

// NewVertexClient creates a generator, transcriber and image describer
// backed by Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, fmt.Errorf("gcp project and location are required for vertex")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{
		client:    client,
		modelName: modelName,
	}, nil
}

// GenerateTurn implements domain.Generator.
func (v *VertexClient) GenerateTurn(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationReply, error) {
	contents := historyContents(req.History, req.Image)
	if len(contents) == 0 {
		return nil, fmt.Errorf("vertex generate turn: empty history")
	}

	temp := float32(0.4)
	topP := float32(0.9)
	outputTokens := int32(4096)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(req), genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   outputTokens,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    turnSchema(),
	}

	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("vertex generate content: %w", err)
	}

	reply, err := ParseReply(res.Text())
	if err != nil {
		return nil, fmt.Errorf("vertex generate turn: %w", err)
	}
	return reply, nil
}

// Transcribe implements domain.Transcriber.
func (v *VertexClient) Transcribe(ctx context.Context, audio []byte, mimeType string, _ domain.UserID) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("vertex transcribe: no audio")
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}

	temp := float32(0)
	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, &genai.GenerateContentConfig{
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("vertex transcribe: %w", err)
	}

	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", fmt.Errorf("vertex returned empty transcript")
	}
	return text, nil
}

// DescribeImage implements domain.ImageDescriber.
func (v *VertexClient) DescribeImage(ctx context.Context, ref domain.ImageRef) (*domain.ImageDescription, error) {
	part, err := imagePart(ref)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(describeImagePrompt),
			part,
		}, genai.RoleUser),
	}

	temp := float32(0.2)
	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, &genai.GenerateContentConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
		ResponseSchema:   imageSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("vertex describe image: %w", err)
	}

	return ParseImageDescription(res.Text())
}

// historyContents maps messages to model turns. The image, if any, rides
// along with the last user message.
func historyContents(history []domain.Message, img *domain.ImageRef) []*genai.Content {
	var contents []*genai.Content
	lastUser := -1
	for i, m := range history {
		if m.Role == domain.RoleUser {
			lastUser = i
		}
	}

	for i, m := range history {
		var role genai.Role
		switch m.Role {
		case domain.RoleAssistant:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}
		if role == genai.RoleModel && len(contents) == 0 {
			// the model turn cannot open the conversation
			contents = append(contents, genai.NewContentFromText("(conversation start)", genai.RoleUser))
		}

		parts := []*genai.Part{genai.NewPartFromText(m.Content)}
		if i == lastUser && img != nil {
			if p, err := imagePart(*img); err == nil {
				parts = append(parts, p)
			}
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

func imagePart(ref domain.ImageRef) (*genai.Part, error) {
	mimeType := ref.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	switch {
	case len(ref.Data) > 0:
		return genai.NewPartFromBytes(ref.Data, mimeType), nil
	case ref.URL != "":
		return genai.NewPartFromURI(ref.URL, mimeType), nil
	default:
		return nil, fmt.Errorf("image has neither data nor url")
	}
}

func turnSchema() *genai.Schema {
	num := &genai.Schema{Type: genai.TypeNumber}
	str := &genai.Schema{Type: genai.TypeString}

	recipe := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":         str,
			"description":  str,
			"servings":     {Type: genai.TypeInteger},
			"prep_minutes": {Type: genai.TypeInteger},
			"ingredients": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: map[string]*genai.Schema{"name": str, "amount": str},
				},
			},
			"instructions": {Type: genai.TypeArray, Items: str},
			"calories":     num,
			"protein_g":    num,
			"carbs_g":      num,
			"fat_g":        num,
		},
	}

	// one object carrying the fields of every variant
	data := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":      str,
			"meal_type": {Type: genai.TypeString, Enum: []string{"breakfast", "lunch", "dinner", "snack"}},
			"calories":  num,
			"protein_g": num,
			"carbs_g":   num,
			"fat_g":     num,
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: map[string]*genai.Schema{"name": str, "quantity": str, "calories": num},
				},
			},
			"activity":        str,
			"duration_min":    num,
			"calories_burned": num,
			"intensity":       str,
			"amount_ml":       num,
			"recipe":          recipe,
		},
	}

	types := make([]string, 0, 5)
	for _, t := range domain.AllActionTypes() {
		if t != domain.ActionSaveRecipe {
			types = append(types, string(t))
		}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"message": str,
			"action": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type":                  {Type: genai.TypeString, Enum: types},
					"requires_confirmation": {Type: genai.TypeBoolean},
					"data":                  data,
				},
				Required: []string{"type", "requires_confirmation"},
			},
		},
		Required: []string{"message"},
	}
}

func imageSchema() *genai.Schema {
	num := &genai.Schema{Type: genai.TypeNumber}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"description": {Type: genai.TypeString},
			"estimated_nutrition": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"calories":  num,
					"protein_g": num,
					"carbs_g":   num,
					"fat_g":     num,
				},
			},
		},
		Required: []string{"description"},
	}
}
