package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerPaths(t *testing.T) {
	tests := []struct {
		owner   string
		wantErr bool
	}{
		{owner: "alice"},
		{owner: "user_42.backup-1"},
		{owner: "", wantErr: true},
		{owner: "..", wantErr: true},
		{owner: ".env", wantErr: true},
		{owner: "a/b", wantErr: true},
		{owner: `a\b`, wantErr: true},
		{owner: "white space", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.owner, func(t *testing.T) {
			raw, parsed, err := ownerPaths("/data", tt.owner)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join("/data", tt.owner, "raw.json"), raw)
			assert.Equal(t, filepath.Join("/data", tt.owner, "parsed.json"), parsed)
		})
	}
}

func TestStatusFor(t *testing.T) {
	contract := &domain.ContractError{Field: "salary_period", Reason: "field is missing"}

	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(fmt.Errorf("failed to normalize salaries: %w", contract)))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrRunNotFound))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk full")))
}

func TestRunCursor_RoundTrip(t *testing.T) {
	cursor := &domain.RunCursor{
		CreatedAt: time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC),
		RunID:     "6a1f0c2e-7b8d-4e4f-9a83-2f6b1c0d9e11",
	}

	decoded, err := DecodeRunCursor(EncodeRunCursor(cursor))
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, cursor.RunID, decoded.RunID)

	empty, err := DecodeRunCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = DecodeRunCursor("!!!")
	assert.Error(t, err)
}
