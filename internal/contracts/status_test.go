package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsComplete(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusAcknowledged, false},
		{StatusOpen, false},
		{StatusPartiallyFilled, false},
		{StatusFilled, true},
		{StatusCancelled, true},
		{StatusRejected, true},
		{StatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsComplete())
			assert.Equal(t, !tt.want, tt.status.IsModifiable())
		})
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to acknowledged", StatusPending, StatusAcknowledged, true},
		{"acknowledged to open", StatusAcknowledged, StatusOpen, true},
		{"open to partially filled", StatusOpen, StatusPartiallyFilled, true},
		{"partially filled to open", StatusPartiallyFilled, StatusOpen, true},
		{"open to filled", StatusOpen, StatusFilled, true},
		{"acknowledged to cancelled", StatusAcknowledged, StatusCancelled, true},
		{"open back to pending", StatusOpen, StatusPending, false},
		{"filled to cancelled", StatusFilled, StatusCancelled, false},
		{"expired to open", StatusExpired, StatusOpen, false},
		{"unknown target", StatusOpen, Status("BOGUS"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"complete", StatusFilled, false},
		{"cancelled", StatusCancelled, false},
		{"canceled", StatusCancelled, false},
		{"open", StatusOpen, false},
		{"trigger pending", StatusOpen, false},
		{"rejected", StatusRejected, false},
		{"PARTIALLY_FILLED", StatusPartiallyFilled, false},
		{"nonsense", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
