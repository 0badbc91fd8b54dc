package repositories

import (
	"context"

	"github.com/sagelearn/sage-voice/domain/entities"
)

// TextQuerier is the external text-modality collaborator. The voice core
// never implements it; the hosting dashboard binds one when the text tab is
// in use.
type TextQuerier interface {
	Query(ctx context.Context, query string, thread []entities.ThreadMessage) (string, error)
}

// ImageQuerier is the external image-modality collaborator.
type ImageQuerier interface {
	Analyze(ctx context.Context, image []byte, query string) (string, error)
}
