package ocr

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ReadSides runs text detection on the front and, when present, the back
// of a document concurrently and joins the results front first.
func ReadSides(ctx context.Context, detector TextDetector, front, back []byte) (string, error) {
	var frontText, backText string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		frontText, err = detector.DetectText(gctx, front)
		return err
	})
	if len(back) > 0 {
		g.Go(func() error {
			var err error
			backText, err = detector.DetectText(gctx, back)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	if strings.TrimSpace(backText) == "" {
		return frontText, nil
	}
	return frontText + "\n" + backText, nil
}
