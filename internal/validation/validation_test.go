package validation

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidEventDate(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		valid bool
	}{
		{name: "valid date", date: "2025-06-01", valid: true},
		{name: "leap day", date: "2024-02-29", valid: true},
		{name: "not a leap year", date: "2025-02-29", valid: false},
		{name: "month out of range", date: "2025-13-01", valid: false},
		{name: "no padding", date: "2025-6-1", valid: false},
		{name: "with time", date: "2025-06-01T00:00:00Z", valid: false},
		{name: "empty string", date: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidEventDate(tt.date))
		})
	}
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2025-06-01T18:30:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)))

	got, err = ParseTime("1748802600000")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.UnixMilli(1748802600000)))

	_, err = ParseTime("yesterday")
	assert.ErrorIs(t, err, ErrInvalid)
}

type testRequest struct {
	CardID string `json:"cardId" validate:"required"`
	Date   string `json:"date" validate:"required,eventdate"`
	Role   string `json:"role,omitempty" validate:"omitempty,oneof=LEADER SELLER"`
	Count  int    `json:"count" validate:"gte=0,lte=10"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantFields []string
	}{
		{
			name: "valid",
			body: `{"cardId":"C1","date":"2025-06-01","count":3}`,
		},
		{
			name:       "missing fields",
			body:       `{"count":3}`,
			wantErr:    true,
			wantFields: []string{"cardId", "date"},
		},
		{
			name:       "bad date and role",
			body:       `{"cardId":"C1","date":"01.06.2025","role":"BOSS","count":3}`,
			wantErr:    true,
			wantFields: []string{"date", "role"},
		},
		{
			name:       "count out of range",
			body:       `{"cardId":"C1","date":"2025-06-01","count":11}`,
			wantErr:    true,
			wantFields: []string{"count"},
		},
		{
			name:       "unknown field",
			body:       `{"cardId":"C1","date":"2025-06-01","extra":1}`,
			wantErr:    true,
			wantFields: []string{"body"},
		},
		{
			name:       "malformed json",
			body:       `{"cardId":`,
			wantErr:    true,
			wantFields: []string{"body"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var dest testRequest
			err := DecodeJSONBody(req, &dest)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "C1", dest.CardID)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)

			var verr *Error
			require.True(t, errors.As(err, &verr))
			for _, f := range tt.wantFields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestDecodeJSONBody_TooLarge(t *testing.T) {
	body := `{"cardId":"` + strings.Repeat("x", int(MaxBodyBytes)) + `","date":"2025-06-01","count":1}`
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))

	var dest testRequest
	err := DecodeJSONBody(req, &dest)
	require.ErrorIs(t, err, ErrBodyTooLarge)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=20&bad=x&big=5000", nil)

	v, err := ParseQueryInt(req, "limit", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	v, err = ParseQueryInt(req, "missing", 50, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	_, err = ParseQueryInt(req, "bad", 50, 1, 100)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = ParseQueryInt(req, "big", 50, 1, 100)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("date", "2025-06-01", "eventdate"))

	err := Var("date", "2025/06/01", "eventdate")
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "must be a date in YYYY-MM-DD format", verr.Fields["date"])
}
