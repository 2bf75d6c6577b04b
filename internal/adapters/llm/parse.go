package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// ParseReply decodes the structured model output of a turn. Replies that do
// not decode, or carry an action that does not fit its type, are rejected.
func ParseReply(raw string) (*domain.GenerationReply, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, fmt.Errorf("empty model output")
	}

	var reply domain.GenerationReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	reply.Message = strings.TrimSpace(reply.Message)
	if reply.Message == "" {
		return nil, fmt.Errorf("model output has no message")
	}
	return &reply, nil
}

// ParseImageDescription decodes the structured output of a photo analysis.
func ParseImageDescription(raw string) (*domain.ImageDescription, error) {
	body := stripFences(raw)

	var desc domain.ImageDescription
	if err := json.Unmarshal([]byte(body), &desc); err != nil {
		// plain prose is still a usable description
		if text := strings.TrimSpace(raw); text != "" && !strings.HasPrefix(text, "{") {
			return &domain.ImageDescription{Description: text}, nil
		}
		return nil, fmt.Errorf("decode image description: %w", err)
	}
	desc.Description = strings.TrimSpace(desc.Description)
	return &desc, nil
}

// stripFences removes a ```json ... ``` wrapper some models add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
