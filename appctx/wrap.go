package appctx

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrNotInContext - error you get when you ask for something not in the context.
var ErrNotInContext = errors.New("failed to get value from context")

// GetStringFromContext - given a CTXKey return the string value from the context if it exists
func GetStringFromContext(ctx context.Context, key CTXKey) (string, error) {
	v, ok := ctx.Value(key).(string)
	if !ok {
		return "", ErrNotInContext
	}
	return v, nil
}

// GetBoolFromContext - given a CTXKey return the bool value from the context if it exists
func GetBoolFromContext(ctx context.Context, key CTXKey) (bool, error) {
	v, ok := ctx.Value(key).(bool)
	if !ok {
		return false, ErrNotInContext
	}
	return v, nil
}

// GetLogLevelFromContext - given a CTXKey return the log level, defaulting to info
func GetLogLevelFromContext(ctx context.Context, key CTXKey) (zerolog.Level, error) {
	v, ok := ctx.Value(key).(zerolog.Level)
	if !ok {
		return zerolog.InfoLevel, ErrNotInContext
	}
	return v, nil
}

// GetLogger - return the logger the context was setup with, if any
func GetLogger(ctx context.Context) (*zerolog.Logger, error) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		return nil, ErrNotInContext
	}
	return logger, nil
}
