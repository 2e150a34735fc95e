package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestStage_LinearProgression(t *testing.T) {
	s := domain.StagePending
	var visited []domain.Stage
	for !s.IsTerminal() {
		next, err := s.Transition(s.Next())
		require.NoError(t, err)
		s = next
		visited = append(visited, s)
	}

	assert.Equal(t, append(append([]domain.Stage{}, domain.StageOrder...), domain.StageReady), visited)
}

func TestStage_Transition(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.Stage
		to      domain.Stage
		wantErr bool
	}{
		{name: "next", from: domain.StageResolving, to: domain.StageInstalling},
		{name: "abort", from: domain.StageStaging, to: domain.StageAborted},
		{name: "skip", from: domain.StageResolving, to: domain.StageProvisioning, wantErr: true},
		{name: "backwards", from: domain.StageInstalling, to: domain.StageResolving, wantErr: true},
		{name: "retry", from: domain.StageInstalling, to: domain.StageInstalling, wantErr: true},
		{name: "after ready", from: domain.StageReady, to: domain.StageAborted, wantErr: true},
		{name: "after abort", from: domain.StageAborted, to: domain.StageResolving, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorContains(t, err, domain.ErrInvalidTransition.Error())
				assert.Equal(t, tt.from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, got)
		})
	}
}
