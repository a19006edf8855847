package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/core"
)

func TestSelector_ChoosesToolPerClaim(t *testing.T) {
	judge := &staticRunner{text: `{"selections": [{"index": 0, "tool": "llm_knowledge"}, {"index": 1, "tool": "wikipedia"}]}`}
	wiki := NewMockTool("wikipedia")
	llm := NewMockTool("llm_knowledge")

	s := NewSelector(judge, []Tool{wiki, llm})

	claims := []core.Claim{
		core.NewClaim("A purely intrinsic knowledge claim.", 0, 0),
		core.NewClaim("Paris is the capital of France.", 0, 1),
	}

	plan := s.Select(context.Background(), claims)
	require.Len(t, plan, 2)

	// Chosen tool leads, registry order follows.
	first := plan[claims[0].Fingerprint]
	require.Len(t, first, 2)
	assert.Equal(t, "llm_knowledge", first[0].Name())
	assert.Equal(t, "wikipedia", first[1].Name())

	second := plan[claims[1].Fingerprint]
	assert.Equal(t, "wikipedia", second[0].Name())
}

func TestSelector_UnparseableResponseFallsBackToRegistryOrder(t *testing.T) {
	judge := &staticRunner{text: "I think wikipedia is best for all of these."}
	wiki := NewMockTool("wikipedia")
	llm := NewMockTool("llm_knowledge")

	s := NewSelector(judge, []Tool{wiki, llm})
	claims := []core.Claim{core.NewClaim("Anything checkable at all.", 0, 0)}

	plan := s.Select(context.Background(), claims)
	ordered := plan[claims[0].Fingerprint]
	require.Len(t, ordered, 2)
	assert.Equal(t, "wikipedia", ordered[0].Name())
}

func TestSelector_UnknownToolNameIgnored(t *testing.T) {
	judge := &staticRunner{text: `{"selections": [{"index": 0, "tool": "crystal_ball"}]}`}
	wiki := NewMockTool("wikipedia")
	llm := NewMockTool("llm_knowledge")

	s := NewSelector(judge, []Tool{wiki, llm})
	claims := []core.Claim{core.NewClaim("Anything checkable at all.", 0, 0)}

	plan := s.Select(context.Background(), claims)
	assert.Equal(t, "wikipedia", plan[claims[0].Fingerprint][0].Name())
}

func TestSelector_SingleToolSkipsJudge(t *testing.T) {
	judge := &staticRunner{text: "{}"}
	wiki := NewMockTool("wikipedia")

	s := NewSelector(judge, []Tool{wiki})
	claims := []core.Claim{core.NewClaim("Anything checkable at all.", 0, 0)}

	plan := s.Select(context.Background(), claims)
	require.Len(t, plan[claims[0].Fingerprint], 1)
	assert.Equal(t, 0, judge.callCount())
}

func TestSelector_BatchIsOneJudgeCall(t *testing.T) {
	judge := &staticRunner{text: `{"selections": []}`}
	s := NewSelector(judge, []Tool{NewMockTool("a"), NewMockTool("b")})

	claims := []core.Claim{
		core.NewClaim("First checkable claim text.", 0, 0),
		core.NewClaim("Second checkable claim text.", 0, 1),
		core.NewClaim("Third checkable claim text.", 1, 0),
	}

	s.Select(context.Background(), claims)
	assert.Equal(t, 1, judge.callCount())
}
