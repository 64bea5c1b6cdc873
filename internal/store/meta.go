package store

import (
	"context"
	"encoding/json"
	"time"
)

// MetaString reads a string meta value. Missing keys and JSON null yield "".
func MetaString(ctx context.Context, s Store, key string) (string, error) {
	var v *string
	if err := getMetaInto(ctx, s, key, &v); err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

// MetaInt reads an integer meta value and reports whether it was present.
func MetaInt(ctx context.Context, s Store, key string) (int, bool, error) {
	var v *int
	if err := getMetaInto(ctx, s, key, &v); err != nil || v == nil {
		return 0, false, err
	}
	return *v, true, nil
}

// MetaTime reads a timestamp meta value. Missing keys yield nil.
func MetaTime(ctx context.Context, s Store, key string) (*time.Time, error) {
	var v *time.Time
	if err := getMetaInto(ctx, s, key, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func getMetaInto(ctx context.Context, s Store, key string, dst any) error {
	raw, ok, err := s.GetMeta(ctx, key)
	if err != nil || !ok {
		return err
	}
	// Values of an unexpected shape are treated as absent.
	_ = json.Unmarshal(raw, dst)
	return nil
}
