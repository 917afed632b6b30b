package planner

import (
	"context"
	"errors"
	"testing"

	gwerrors "github.com/Aiuser8/thallos-llm-service/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockChat is a testify/mock double for ChatCompleter, standing in for
// the LLM endpoint the Planner would otherwise call over HTTP.
type mockChat struct {
	mock.Mock
}

func (m *mockChat) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

func newMockChat(reply string, err error) *mockChat {
	m := &mockChat{}
	m.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(reply, err)
	return m
}

func TestPlanBareSQLShape(t *testing.T) {
	chat := newMockChat(`{"sql": "SELECT ts FROM public.market_data LIMIT 1"}`, nil)
	p := New(chat)

	plan, err := p.Plan(context.Background(), "latest utilization", "schema doc")

	require.NoError(t, err)
	assert.Equal(t, "SELECT ts FROM public.market_data LIMIT 1", plan.SQL)
	chat.AssertExpectations(t)
}

func TestPlanRichShape(t *testing.T) {
	reply := `{"domain":"lending","reason":"utilization query","sql":"SELECT ts FROM public.market_data LIMIT 1","presentation":{"style":"concise"}}`
	chat := newMockChat(reply, nil)
	p := New(chat)

	plan, err := p.Plan(context.Background(), "q", "doc")

	require.NoError(t, err)
	assert.Equal(t, "lending", plan.Domain)
	assert.Equal(t, "concise", plan.Presentation.Style)
	chat.AssertExpectations(t)
}

func TestPlanRecoversBalancedSubstringFromProse(t *testing.T) {
	reply := "Sure! Here you go:\n```json\n{\"sql\": \"SELECT ts FROM public.market_data LIMIT 1\"}\n```"
	chat := newMockChat(reply, nil)
	p := New(chat)

	plan, err := p.Plan(context.Background(), "q", "doc")

	require.NoError(t, err)
	assert.Equal(t, "SELECT ts FROM public.market_data LIMIT 1", plan.SQL)
}

func TestPlanSurfacesParseErrorOnGarbage(t *testing.T) {
	p := New(newMockChat("not json at all", nil))

	_, err := p.Plan(context.Background(), "q", "doc")

	require.Error(t, err)

	var gerr *gwerrors.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, gwerrors.ErrTypePlannerParse, gerr.Type)
}

func TestPlanSurfacesParseErrorOnEmptySQL(t *testing.T) {
	p := New(newMockChat(`{"sql": ""}`, nil))

	_, err := p.Plan(context.Background(), "q", "doc")

	require.Error(t, err)

	var gerr *gwerrors.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, gwerrors.ErrTypePlannerParse, gerr.Type)
}

func TestPlanSurfacesLLMFailure(t *testing.T) {
	p := New(newMockChat("", errors.New("connection refused")))

	_, err := p.Plan(context.Background(), "q", "doc")

	require.Error(t, err)

	var gerr *gwerrors.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, gwerrors.ErrTypeLLMFailure, gerr.Type)
}

func TestRetryIncludesPreviousSQLAndError(t *testing.T) {
	var captured string

	chat := &mockChat{}
	chat.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.String(2) }).
		Return(`{"sql": "SELECT ts FROM public.market_data LIMIT 1"}`, nil)

	p := New(chat)

	_, err := p.Retry(context.Background(), "q", "doc", "SELECT bad", "syntax error near bad")

	require.NoError(t, err)
	assert.Contains(t, captured, "SELECT bad")
	assert.Contains(t, captured, "syntax error near bad")
	chat.AssertExpectations(t)
}

func TestRecoverableClassifiesKnownErrors(t *testing.T) {
	assert.True(t, Recoverable("ERROR: syntax error at or near \"SELCT\""))
	assert.True(t, Recoverable("OVER is not supported for ordered-set aggregate"))
	assert.True(t, Recoverable("function percentile_cont(numeric) OVER is not allowed"))
	assert.False(t, Recoverable("relation \"public.users\" does not exist"))
}

func TestFallbackPlannerProducesSafeQuery(t *testing.T) {
	fp := NewFallbackPlanner("public.market_data")

	plan := fp.Plan("what is the latest weth utilization")

	assert.Contains(t, plan.SQL, "public.market_data")
	assert.Contains(t, plan.SQL, "WETH")
	assert.Contains(t, plan.SQL, "LIMIT 1")
}

func TestFallbackPlannerDefaultsSymbol(t *testing.T) {
	fp := NewFallbackPlanner("public.market_data")

	plan := fp.Plan("what is the current utilization")

	assert.Contains(t, plan.SQL, "USDC")
}
