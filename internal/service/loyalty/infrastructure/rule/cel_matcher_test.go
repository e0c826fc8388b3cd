package rule

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/service/loyalty/domain"
)

func TestCELMatcher_Match(t *testing.T) {
	m, err := NewCELMatcher()
	require.NoError(t, err)

	conditions := []*domain.Condition{
		{ID: 1},
		{ID: 2, TraitExpression: `traits["vcpu"] >= 4`},
		{ID: 3, TraitExpression: `traits["region"] == "hk"`},
		{ID: 4, TraitExpression: `traits["gpu"] == true`},
	}
	traits := domain.Traits{"vcpu": int64(8), "region": "sg"}

	got, err := m.Match(context.Background(), conditions, traits)
	require.NoError(t, err)

	ids := make([]int64, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestCELMatcher_NilTraits(t *testing.T) {
	m, err := NewCELMatcher()
	require.NoError(t, err)

	got, err := m.Match(context.Background(), []*domain.Condition{
		{ID: 1, TraitExpression: `traits["vcpu"] >= 4`},
		{ID: 2},
	}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestCELMatcher_InvalidExpression(t *testing.T) {
	m, err := NewCELMatcher()
	require.NoError(t, err)

	_, err = m.Match(context.Background(), []*domain.Condition{
		{ID: 7, TraitExpression: `traits["vcpu"] >=`},
	}, domain.Traits{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidTraitCriteria))
}

func TestCELMatcher_NonBoolExpression(t *testing.T) {
	m, err := NewCELMatcher()
	require.NoError(t, err)

	_, err = m.Match(context.Background(), []*domain.Condition{
		{ID: 8, TraitExpression: `1 + 2`},
	}, domain.Traits{})
	assert.True(t, errors.Is(err, domain.ErrInvalidTraitCriteria))
}
