package handler

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/validator"
)

func TestIngestRequest_Validation(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "valid single object",
			body: `{"objects": [{"key": "a.example.com", "type": "hostname"}]}`,
		},
		{
			name: "valid multiple objects",
			body: `{"objects": [{"key": "a.example.com", "type": "hostname"}, {"key": "192.0.2.10", "type": "ip_address"}]}`,
		},
		{
			name:    "empty object list",
			body:    `{"objects": []}`,
			wantErr: true,
		},
		{
			name:    "missing objects",
			body:    `{}`,
			wantErr: true,
		},
		{
			name:    "object without key",
			body:    `{"objects": [{"type": "hostname"}]}`,
			wantErr: true,
		},
		{
			name:    "object without type",
			body:    `{"objects": [{"key": "a.example.com"}]}`,
			wantErr: true,
		},
		{
			name:    "key over length limit",
			body:    `{"objects": [{"key": "` + strings.Repeat("x", 501) + `", "type": "hostname"}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req IngestRequest
			err := json.NewDecoder(bytes.NewReader([]byte(tt.body))).Decode(&req)
			assert.NoError(t, err)

			vErr := v.Validate(req)
			if tt.wantErr {
				assert.Error(t, vErr)
			} else {
				assert.NoError(t, vErr)
			}
		})
	}
}
