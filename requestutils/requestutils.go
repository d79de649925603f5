package requestutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/billable/billable/logging"
)

var payloadLimit10MB = int64(1024 * 1024 * 10)

// ReadWithLimit reads an io reader with a limit and closes
func ReadWithLimit(ctx context.Context, body io.Reader, limit int64) ([]byte, error) {
	if closer, ok := body.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logging.Logger(ctx, "requestutils.ReadWithLimit").Error().Err(err).Msg("error closing body")
			}
		}()
	}
	return io.ReadAll(io.LimitReader(body, limit))
}

// Read an io reader
func Read(ctx context.Context, body io.Reader) ([]byte, error) {
	jsonString, err := ReadWithLimit(ctx, body, payloadLimit10MB)
	if err != nil {
		return nil, fmt.Errorf("error reading body: %w", err)
	}
	return jsonString, nil
}

// ReadJSON reads a request body according to an interface and limits the size to 10MB
func ReadJSON(ctx context.Context, body io.Reader, intr interface{}) error {
	if body == nil {
		return errors.New("error in request body: body is nil")
	}
	jsonString, err := Read(ctx, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(jsonString, &intr); err != nil {
		return fmt.Errorf("error unmarshalling body: %w", err)
	}
	return nil
}
