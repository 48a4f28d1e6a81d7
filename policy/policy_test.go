package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		source string
		facts  Facts
		want   bool
	}{
		{
			name:   "default policy under limit",
			source: "amount < 10000",
			facts:  Facts{Amount: 1000},
			want:   true,
		},
		{
			name:   "default policy over limit",
			source: "amount < 10000",
			facts:  Facts{Amount: 25000},
		},
		{
			name:   "risk and amount",
			source: "amount < 5000 && risk_score < 0.5",
			facts:  Facts{Amount: 1000, RiskScore: 0.7},
		},
		{
			name:   "vendor and currency",
			source: `vendor == "Acme Corp" && currency == "USD"`,
			facts:  Facts{Vendor: "Acme Corp", Currency: "USD"},
			want:   true,
		},
		{
			name:   "string result",
			source: `"false"`,
		},
		{
			name:   "numeric result",
			source: "amount * 2",
			facts:  Facts{Amount: 3},
			want:   true,
		},
	}
	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(context.Background(), tt.source, tt.facts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileCachesBySource(t *testing.T) {
	engine := NewEngine()
	ctx := context.Background()

	first, err := engine.Compile(ctx, "amount < 10000")
	require.NoError(t, err)
	second, err := engine.Compile(ctx, "  amount < 10000 ")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "amount < 10000", first.Source())
}

func TestCompileErrors(t *testing.T) {
	engine := NewEngine()
	ctx := context.Background()

	_, err := engine.Compile(ctx, "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	_, err = engine.Compile(ctx, "amount <")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse policy")
}
