package metric

import (
	"context"
	"fmt"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/extract"
	"github.com/hupe1980/evalmesh/verify"
)

// HallucinationStage extracts factual claims from every successful output,
// verifies the whole batch through the verification subsystem and scores each
// output by its verdict distribution. UNVERIFIABLE claims earn half credit;
// an output with no checkable claims scores full marks.
type HallucinationStage struct {
	extractor *extract.Extractor
	verifier  *verify.Verifier
}

// NewHallucinationStage constructs the stage.
func NewHallucinationStage(extractor *extract.Extractor, verifier *verify.Verifier) *HallucinationStage {
	return &HallucinationStage{extractor: extractor, verifier: verifier}
}

// Name implements Stage.
func (s *HallucinationStage) Name() core.Metric { return core.MetricHallucination }

// Compute implements Stage.
func (s *HallucinationStage) Compute(ctx context.Context, in *Input) (*core.MetricResult, error) {
	successful := in.Successful()
	if len(successful) == 0 {
		return nil, fmt.Errorf("no successful generations to score")
	}

	// Extraction is batched across all outputs so tool selection later runs
	// once for the whole job.
	type genClaims struct {
		gen    core.GenerationResult
		claims []core.Claim
	}
	perGen := make([]genClaims, 0, len(successful))
	var all []core.Claim
	extractFailures := 0

	for _, g := range successful {
		claims, err := s.extractor.Extract(ctx, g.Text, g.ExampleIndex, g.RepeatIndex)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			extractFailures++
			continue
		}
		perGen = append(perGen, genClaims{gen: g, claims: claims})
		all = append(all, claims...)
	}
	if len(perGen) == 0 {
		return nil, fmt.Errorf("claim extraction failed for every output")
	}

	batch, err := s.verifier.VerifyBatch(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("verify claims: %w", err)
	}

	var scores []float64
	var breakdown []core.ExampleScore
	counts := map[core.Verdict]int{}

	for _, gc := range perGen {
		score := scoreGeneration(gc.claims, batch.Verdicts, counts)
		scores = append(scores, score)
		breakdown = append(breakdown, core.ExampleScore{
			ExampleIndex: gc.gen.ExampleIndex,
			Score:        score,
			Note:         fmt.Sprintf("repeat %d, %d claims", gc.gen.RepeatIndex, len(gc.claims)),
		})
	}

	status := core.MetricOK
	if extractFailures > 0 {
		status = core.MetricPartial
	}

	return &core.MetricResult{
		Metric:    core.MetricHallucination,
		Score:     core.Float64Ptr(mean(scores)),
		Status:    status,
		Breakdown: breakdown,
		Evidence: map[string]any{
			"total_claims":        len(all),
			"unique_claims":       len(batch.States),
			"cache_hits":          batch.CacheHits,
			"dispatched":          batch.Dispatched,
			"supported":           counts[core.VerdictSupported],
			"refuted":             counts[core.VerdictRefuted],
			"unverifiable":        counts[core.VerdictUnverifiable],
			"extraction_failures": extractFailures,
		},
	}, nil
}

// scoreGeneration is 100*(supported + 0.5*unverifiable)/claims. Zero claims
// means nothing to contradict, so full score.
func scoreGeneration(claims []core.Claim, verdicts map[string]*core.VerificationVerdict, counts map[core.Verdict]int) float64 {
	if len(claims) == 0 {
		return 100
	}

	var credit float64
	for _, c := range claims {
		verdict, ok := verdicts[c.Fingerprint]
		if !ok {
			counts[core.VerdictUnverifiable]++
			credit += 0.5
			continue
		}
		counts[verdict.Verdict]++
		switch verdict.Verdict {
		case core.VerdictSupported:
			credit += 1
		case core.VerdictUnverifiable:
			credit += 0.5
		}
	}
	return 100 * credit / float64(len(claims))
}
