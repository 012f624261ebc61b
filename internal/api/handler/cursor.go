package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/applyflow/applyflow-be/internal/storage"
)

// DecodeCursor parses an opaque page cursor. An empty string means the
// first page.
func DecodeCursor(cursorStr string) (*storage.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var at int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &at)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp in cursor: %w", err)
	}

	return &storage.Cursor{
		At: time.Unix(0, at),
		ID: decodedParts[1],
	}, nil
}

// EncodeCursor renders a cursor opaque to clients.
func EncodeCursor(cursor *storage.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.At.UnixNano(), cursor.ID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
