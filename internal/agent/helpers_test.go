package agent_test

import (
	"context"

	"codeberg.org/mutker/envirod/internal/cloud"
)

type nopResponder struct{}

func (nopResponder) SendMethodResponse(context.Context, cloud.MethodResponse) error { return nil }
func (nopResponder) PatchReported(context.Context, map[string]any) error            { return nil }
